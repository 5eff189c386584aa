package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/geiger-gateway/internal/status"
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
	"dose": func(v float64) string {
		return fmt.Sprintf("%.3f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Geiger Gateway</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.dose { font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Geiger Gateway {{.Config.DeviceID}}</h1>

<h2>Radiation</h2>
<table>
{{if .LastSample}}<tr><th>Dose rate</th><td id="dose" class="dose">{{dose .LastSample.DoseRate}} &micro;Sv/h</td></tr>
<tr><th>CPM</th><td id="cpm">{{.LastSample.CountsPerMinute}}</td></tr>
<tr><th>Counts in period</th><td>{{.LastSample.CountsInPeriod}}</td></tr>
<tr><th>Sampled</th><td>{{.LastSampleAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Dose rate</th><td id="dose" class="unknown">waiting for first sample</td></tr>
{{end}}<tr><th>Tube signal</th><td>{{if .SignalSeen}}seen{{else}}none yet{{end}}</td></tr>
<tr><th>Samples</th><td>{{.Samples}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{.MQTTState}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
{{if .Wifi}}<tr><th>SSID</th><td>{{.Wifi.SSID}}</td></tr>
<tr><th>IP</th><td>{{.Wifi.IP}}</td></tr>
<tr><th>RSSI</th><td>{{.Wifi.RSSI}} dBm</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tube</th><td>{{.Config.Tube}} (factor {{.Config.TubeFactor}})</td></tr>
<tr><th>Log period</th><td>{{.Config.LogPeriodMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
