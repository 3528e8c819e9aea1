package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(seconds int64) string {
		d := time.Duration(seconds) * time.Second
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pacemaker Panel</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 35%; }
button { font-family: monospace; margin: 2px; }
input[type=range] { width: 60%; }
.connected { color: green; }
.disconnected { color: red; }
.locked { color: #b00; font-weight: bold; }
.emergency { background: #c00; color: #fff; font-weight: bold; }
.pending { color: orange; }
.notice { padding: 4px 8px; margin: 2px 0; background: #ffe; border: 1px solid #cc8; }
.notice.locked { background: #fee; border-color: #c88; }
#panel.disabled input, #panel.disabled .ctl { opacity: 0.4; }
</style>
</head>
<body>
<h1>Pacemaker Panel
<span id="hw" class="{{if .Hardware.Connected}}connected{{else}}disconnected{{end}}">{{if .Hardware.Connected}}hardware connected{{else}}hardware disconnected{{end}}</span></h1>

<div id="notices">{{range .Notices}}<div class="notice {{.Kind}}">{{.Message}}</div>{{end}}</div>

<table>
<tr><th>Mode</th><td id="mode">{{.Mode}}</td></tr>
<tr><th>Pending</th><td><button data-nav="up">&#9650;</button><span id="pending" class="pending">{{.PendingMode}}</span><button data-nav="down">&#9660;</button><button id="commit">Commit</button></td></tr>
<tr><th>Lock</th><td><span id="lock" class="{{if .Locked}}locked{{end}}">{{if .Locked}}LOCKED{{else}}unlocked{{end}}</span> <button id="toggle-lock">Toggle</button> <span id="autolock">{{if not .Locked}}{{.AutoLockSeconds}}s{{end}}</span></td></tr>
<tr><th>Battery</th><td id="battery">{{.Battery}}%</td></tr>
<tr><th>Emergency</th><td><button id="emergency" class="emergency">EMERGENCY</button></td></tr>
</table>

<div id="panel" class="{{if .ControlsLocked}}disabled{{end}}">
<h2>Controls <small id="screen">{{if ne .Screen "NONE"}}{{.Screen}} settings{{end}}</small></h2>
<table id="controls">
{{range .Controls}}<tr data-field="{{.Field}}">
<th>{{.Title}}</th>
<td><button class="ctl" data-step="down">-</button>
<input type="range" min="0" max="100" step="any" value="{{.Position}}">
<button class="ctl" data-step="up">+</button>
<span class="label">{{.Label}}</span></td>
</tr>
{{end}}</table>
</div>

<h2>System</h2>
<table>
<tr><th>Adapter</th><td id="hw-url">{{.Hardware.URL}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .MQTT.Connected}}connected{{else}}disconnected{{end}} {{.MQTT.Broker}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .UptimeSeconds}}</td></tr>
<tr><th>Started</th><td>{{.StartTime}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Auto-lock</th><td>{{if eq .Config.AutoLockMs 0}}disabled{{else}}{{.Config.AutoLockMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/api/state">JSON</a></p>

<script>
(function() {
  function $(id) { return document.getElementById(id); }

  function toast(kind, msg) {
    var n = document.createElement("div");
    n.className = "notice " + kind;
    n.textContent = msg;
    $("notices").appendChild(n);
    setTimeout(function() { n.remove(); }, 3000);
  }

  function post(path, body) {
    fetch(path, {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify(body || {})
    }).then(function(r) {
      if (r.status === 423) { toast("locked", "Controls are locked"); return; }
      if (!r.ok) { r.json().then(function(e) { toast("info", e.error); }); }
    });
  }

  function render(s) {
    $("mode").textContent = s.mode;
    $("pending").textContent = s.pending_mode;
    $("lock").textContent = s.locked ? "LOCKED" : "unlocked";
    $("lock").className = s.locked ? "locked" : "";
    $("autolock").textContent = s.locked ? "" : s.auto_lock_seconds + "s";
    $("battery").textContent = s.battery + "%";
    $("screen").textContent = s.screen !== "NONE" ? s.screen + " settings" : "";
    $("hw").textContent = s.hardware.connected ? "hardware connected" : "hardware disconnected";
    $("hw").className = s.hardware.connected ? "connected" : "disconnected";
    $("hw-url").textContent = s.hardware.url;
    $("panel").className = s.controls_locked ? "disabled" : "";
    s.controls.forEach(function(c) {
      var row = document.querySelector('tr[data-field="' + c.field + '"]');
      if (!row) return;
      var slider = row.querySelector("input");
      if (document.activeElement !== slider) slider.value = c.position;
      row.querySelector(".label").textContent = c.label;
    });
    var box = $("notices");
    box.innerHTML = "";
    (s.notices || []).forEach(function(n) {
      var d = document.createElement("div");
      d.className = "notice " + n.kind;
      d.textContent = n.message;
      box.appendChild(d);
    });
  }

  document.querySelectorAll("[data-nav]").forEach(function(b) {
    b.onclick = function() { post("/api/mode/navigate", { direction: b.dataset.nav }); };
  });
  $("commit").onclick = function() { post("/api/mode/commit"); };
  $("toggle-lock").onclick = function() { post("/api/lock/toggle"); };
  $("emergency").onclick = function() { post("/api/emergency"); };

  document.querySelectorAll("#controls tr").forEach(function(row) {
    var field = row.dataset.field;
    row.querySelectorAll("[data-step]").forEach(function(b) {
      b.onclick = function() { post("/api/controls/" + field + "/step", { direction: b.dataset.step }); };
    });
    var slider = row.querySelector("input");
    slider.onchange = function() {
      post("/api/controls/" + field + "/slider", { position: parseFloat(slider.value) });
    };
  });

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onmessage = function(m) {
      try { render(JSON.parse(m.data).status); } catch (e) {}
    };
    ws.onclose = function() { setTimeout(connect, 2000); };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, status.BuildInner(snap))
}
