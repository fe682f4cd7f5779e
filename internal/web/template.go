package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/fridge-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"temp": func(v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "–"
		}
		return fmt.Sprintf("%.2f °C", v)
	},
	"rate": func(v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "–"
		}
		return fmt.Sprintf("%+.2f °C/min", v)
	},
	"alarmClass": func(s string) string {
		switch s {
		case "ACTIVE":
			return "active"
		case "PENDING":
			return "pending"
		default:
			return "off"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="60">
<title>Fridge Monitor</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.active { color: red; font-weight: bold; }
.pending { color: orange; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Fridge Monitor</h1>

<h2>Alarm</h2>
<table>
<tr><th>Alarm</th><td id="alarm" class="{{if and .Alarm (not .AlarmDisable)}}active{{else}}off{{end}}">{{if .Alarm}}{{if .AlarmDisable}}ON (silenced){{else}}ON{{end}}{{else}}OFF{{end}}</td></tr>
<tr><th>Alarm Disable</th><td id="alarm-disable">{{if .AlarmDisable}}ON{{else}}OFF{{end}}</td></tr>
</table>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>Temperature</th><th>24 h average</th><th>Delta</th><th>Alarm</th><th>Door</th></tr>
{{range .Channels}}<tr><td>{{.Name}}</td><td>{{temp .Temp}}</td><td>{{temp .Average}}</td><td>{{rate .Delta}}</td>
{{if .Reference}}<td class="off">reference</td><td></td>{{else}}<td class="{{alarmClass (printf "%s" .Alarm)}}">{{.Alarm}}</td><td>{{if .DoorOpen}}OPEN{{else}}CLOSED{{end}}</td>{{end}}</tr>
{{end}}</table>

{{if .Events}}<h2>Recent Alarm Events</h2>
<table>
{{range .Events}}<tr><td>{{.Time.UTC.Format "2006-01-02 15:04:05Z"}}</td><td>{{.Message}}</td></tr>
{{end}}</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Base topic</th><td>{{.Config.BaseTopic}}</td></tr>
{{if .RSSI}}<tr><th>Wi-Fi signal</th><td>{{.RSSI}} dBm</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample interval</th><td>{{.Config.SampleInterval}}</td></tr>
<tr><th>Tick interval</th><td>{{.Config.TickInterval}}</td></tr>
<tr><th>Alarm Disable reset</th><td>{{.Config.ResetHour}}:00</td></tr>
<tr><th>Store</th><td>{{.Config.StoreDriver}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
