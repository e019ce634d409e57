package webui

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>upnpscan</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; background: #111; color: #eee; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #333; }
th { color: #9ad; }
button, input { margin-right: 0.5rem; padding: 0.3rem 0.6rem; }
#status { margin-top: 0.5rem; color: #888; }
.gone { color: #777; text-decoration: line-through; }
</style>
</head>
<body>
<h1>upnpscan</h1>
<div>
  <input id="target" placeholder="239.255.255.250:1900">
  <input id="st" placeholder="ssdp:all">
  <label><input type="checkbox" id="enrich" checked> enrich</label>
  <button onclick="start()">Start</button>
  <button onclick="stop()">Stop</button>
  <button onclick="search()">Search</button>
  <a href="/export">Export</a>
</div>
<div id="status">idle</div>
<table>
<thead><tr><th>Name</th><th>UDN</th><th>Location</th><th>Types</th><th>Last event</th><th>Score</th></tr></thead>
<tbody id="devices"></tbody>
</table>
<script>
const devices = new Map();
function render() {
  const body = document.getElementById('devices');
  body.innerHTML = '';
  for (const d of devices.values()) {
    const tr = document.createElement('tr');
    if (d.lastEvent === 'advertisement:byebye' || d.lastEvent === 'expired') tr.className = 'gone';
    tr.innerHTML = '<td>' + (d.deviceName || d.friendlyName || '') + '</td><td>' + d.udn +
      '</td><td>' + (d.location || '') + '</td><td>' + (d.types || []).join('<br>') +
      '</td><td>' + (d.lastEvent || '') + '</td><td>' + (d.insightScore || 0) + '</td>';
    body.appendChild(tr);
  }
}
function setStatus(p) {
  document.getElementById('status').textContent =
    p.status + ' | ' + p.devices + ' devices, ' + p.searches + ' searches';
}
const source = new EventSource('/events');
source.onmessage = (msg) => {
  const ev = JSON.parse(msg.data);
  if (ev.type === 'snapshot') {
    devices.clear();
    for (const d of ev.devices || []) devices.set(d.udn, d);
  } else if (ev.type === 'device' && ev.device) {
    devices.set(ev.device.udn, ev.device);
  }
  if (ev.progress) setStatus(ev.progress);
  render();
};
function start() {
  fetch('/start', { method: 'POST', body: JSON.stringify({
    target: document.getElementById('target').value,
    search_target: document.getElementById('st').value,
    search_interval_ms: 30000,
    enable_enrichment: document.getElementById('enrich').checked,
  })});
}
function stop() { fetch('/stop', { method: 'POST' }); }
function search() { fetch('/search', { method: 'POST' }); }
</script>
</body>
</html>
`
