// Package netinfo reads network details for the status page: the pi-helper
// environment file and the Wi-Fi signal level.
package netinfo

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sweeney/fridge-monitor/internal/status"
)

// DefaultEnvFile is written by pi-helper on network changes.
const DefaultEnvFile = "/run/pi-helper.env"

// DefaultWirelessFile lists per-interface wireless statistics.
const DefaultWirelessFile = "/proc/net/wireless"

// DefaultInterface is the Pi's Wi-Fi interface.
const DefaultInterface = "wlan0"

// pi-helper env var names.
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// ReadNetwork reads network info from the env file at path, falling back
// to the process environment when the file is missing. It returns nil
// when no network status is known.
func ReadNetwork(path string) *status.NetworkInfo {
	get := os.Getenv
	if vals, err := godotenv.Read(path); err == nil {
		get = func(k string) string {
			if v, ok := vals[k]; ok {
				return v
			}
			return os.Getenv(k)
		}
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}

// RSSI returns the signal level in dBm of iface from a /proc/net/wireless
// style file.
//
//	Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
//	 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
//	 wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
func RSSI(path, iface string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name, rest, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || name != iface {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return 0, fmt.Errorf("parse %s: short line for %s", path, iface)
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s signal level: %w", iface, err)
		}
		return int(level), nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return 0, fmt.Errorf("%s: interface %s not listed", path, iface)
}
