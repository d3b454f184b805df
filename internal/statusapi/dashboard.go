package statusapi

// dashboardHTML is a self-contained dashboard: it polls /api/status on an
// interval and re-renders a table, no build step or static assets needed
// (spec §4.5: "a poll interval of no more than two seconds").
const dashboardHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>taskmaster</title>
<style>
body { font-family: monospace; margin: 2rem; background: #111; color: #ddd; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #333; padding: 0.4rem 0.8rem; text-align: left; }
th { background: #1c1c1c; }
.RUNNING { color: #6f6; }
.STOPPED, .EXITED { color: #999; }
.STARTING, .STOPPING, .BACKOFF { color: #ff6; }
.FATAL { color: #f66; }
</style>
</head>
<body>
<h1>taskmaster</h1>
<table id="t">
<thead><tr><th>instance</th><th>state</th><th>pid</th><th>uptime</th><th>last exit</th><th>retries left</th></tr></thead>
<tbody></tbody>
</table>
<script>
async function refresh() {
  const res = await fetch('/api/status');
  const rows = await res.json();
  const body = document.querySelector('#t tbody');
  body.innerHTML = '';
  for (const r of (rows || [])) {
    const tr = document.createElement('tr');
    tr.innerHTML = '<td>' + r.name + '</td>' +
      '<td class="' + r.state + '">' + r.state + '</td>' +
      '<td>' + (r.pid || '-') + '</td>' +
      '<td>' + r.uptime_seconds.toFixed(1) + 's</td>' +
      '<td>' + r.last_exit_code + '</td>' +
      '<td>' + r.retries_remaining + '</td>';
    body.appendChild(tr);
  }
}
refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`
