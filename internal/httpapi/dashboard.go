package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>QueueFeed Admin</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --accent-2: #e88a3d;
      --danger: #c2483f;
      --muted: #6f7d7d;
      --shadow: 0 18px 36px rgba(16, 34, 35, 0.16);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background:
        radial-gradient(1200px 500px at -5% -10%, rgba(232, 138, 61, 0.18), transparent 60%),
        radial-gradient(900px 500px at 110% -10%, rgba(31, 157, 136, 0.2), transparent 65%),
        linear-gradient(140deg, #fff9ef 0%, #f1f8f7 45%, #fffdf9 100%);
      min-height: 100vh;
      padding: 20px;
    }

    .shell {
      max-width: 1100px;
      margin: 0 auto;
      display: grid;
      gap: 14px;
    }

    .bar {
      background: linear-gradient(140deg, #fffefc, #fcf6eb);
      border: 1px solid var(--line);
      border-radius: 18px;
      padding: 16px;
      box-shadow: var(--shadow);
    }

    h1 { margin: 0; font-size: clamp(1.2rem, 2vw, 1.75rem); letter-spacing: 0.02em; }
    .sub { margin-top: 6px; color: var(--muted); font-size: 0.9rem; }

    .controls {
      display: grid;
      gap: 10px;
      grid-template-columns: 1.4fr 0.8fr 0.6fr 0.5fr;
      margin-top: 12px;
    }

    .controls input, .controls select {
      width: 100%;
      border-radius: 10px;
      border: 1px solid var(--line);
      background: #ffffff;
      color: var(--ink);
      padding: 10px 12px;
      font-size: 0.92rem;
      outline: none;
    }

    .stats {
      display: grid;
      gap: 10px;
      grid-template-columns: repeat(5, 1fr);
    }

    .stat {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 12px;
      text-align: center;
    }

    .stat .value { font-size: 1.4rem; font-weight: 700; }
    .stat .label { color: var(--muted); font-size: 0.78rem; text-transform: uppercase; letter-spacing: 0.06em; }

    table {
      width: 100%;
      border-collapse: collapse;
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      overflow: hidden;
    }

    th, td { padding: 10px 12px; text-align: left; font-size: 0.88rem; border-bottom: 1px solid var(--line); }
    th { background: #f4eddc; text-transform: uppercase; font-size: 0.72rem; letter-spacing: 0.06em; color: var(--muted); }

    td.empty { text-align: center; color: var(--muted); padding: 28px 12px; }
    .pill { display: inline-block; padding: 2px 10px; border-radius: 999px; font-size: 0.78rem; border: 1px solid var(--line); }
    .pill.queued { background: rgba(232, 138, 61, 0.15); color: var(--accent-2); }
    .pill.processing { background: rgba(31, 157, 136, 0.14); color: var(--accent); }
    .pill.completed { background: rgba(31, 157, 136, 0.24); color: var(--accent); }
    .pill.failed { background: rgba(194, 72, 63, 0.14); color: var(--danger); }
    .pill.submitted { background: rgba(111, 125, 125, 0.14); color: var(--muted); }

    button {
      border: 1px solid var(--line);
      border-radius: 9px;
      background: #ffffff;
      color: var(--ink);
      padding: 6px 10px;
      font-size: 0.8rem;
      cursor: pointer;
    }
    button:hover { border-color: var(--accent); }
    button.danger:hover { border-color: var(--danger); color: var(--danger); }
    button:disabled { opacity: 0.5; cursor: wait; }

    .status { color: var(--muted); font-size: 0.84rem; }
    .status.bad { color: var(--danger); }
    .status.live { color: var(--accent); }
  </style>
</head>
<body>
  <div class="shell">
    <header class="bar">
      <h1>QueueFeed Admin</h1>
      <div class="sub">Processing queue across all tenants. <span id="status" class="status">idle</span></div>
      <div class="controls">
        <input id="token" type="password" placeholder="admin token" />
        <input id="tenant" type="text" placeholder="tenant id" />
        <select id="filter">
          <option value="all">all kinds</option>
          <option value="submitted">submitted</option>
          <option value="queued">queued</option>
          <option value="processing">processing</option>
          <option value="completed">completed</option>
          <option value="failed">failed</option>
        </select>
        <button id="connect">Connect</button>
      </div>
    </header>

    <section class="stats" id="stats"></section>

    <section>
      <table>
        <thead>
          <tr><th>Document</th><th>Kind</th><th>When</th><th>Details</th><th>Actions</th></tr>
        </thead>
        <tbody id="rows"></tbody>
      </table>
    </section>
  </div>

  <script>
    (() => {
      const dom = {
        token: document.getElementById("token"),
        tenant: document.getElementById("tenant"),
        filter: document.getElementById("filter"),
        connect: document.getElementById("connect"),
        status: document.getElementById("status"),
        stats: document.getElementById("stats"),
        rows: document.getElementById("rows"),
      };

      let items = [];
      let socket = null;
      const CAP = 100;

      function setStatus(text, cls) {
        dom.status.textContent = text;
        dom.status.className = "status" + (cls ? " " + cls : "");
      }

      function upsert(item) {
        items = items.filter((existing) => existing.id !== item.id);
        items.unshift(item);
        if (items.length > CAP) items = items.slice(0, CAP);
      }

      function stats() {
        const out = { total: items.length, queued: 0, processing: 0, failed: 0, sum: 0, n: 0 };
        for (const item of items) {
          if (item.type === "queued" || item.type === "submitted") out.queued++;
          if (item.type === "processing") out.processing++;
          if (item.type === "failed") out.failed++;
          const secs = item.details && item.details.processTimeSec;
          if (item.type === "completed" && typeof secs === "number") { out.sum += secs; out.n++; }
        }
        out.avg = out.n ? out.sum / out.n : 0;
        return out;
      }

      function render() {
        const s = stats();
        dom.stats.innerHTML = [
          ["Total", s.total], ["Queued", s.queued], ["Processing", s.processing],
          ["Failed", s.failed], ["Avg Time", s.avg.toFixed(1) + "s"],
        ].map(([label, value]) =>
          '<div class="stat"><div class="value">' + value + '</div><div class="label">' + label + "</div></div>"
        ).join("");

        const filter = dom.filter.value;
        const visible = filter === "all" ? items : items.filter((item) => item.type === filter);
        if (visible.length === 0) {
          const message = items.length === 0
            ? "Queue is empty. New documents will appear here."
            : "No documents match the current filter.";
          dom.rows.innerHTML = '<tr><td colspan="5" class="empty">' + message + "</td></tr>";
          return;
        }
        dom.rows.innerHTML = visible.map((item) => {
          const details = item.details || {};
          const name = details.filename || item.id;
          const when = item.ts ? new Date(item.ts).toLocaleTimeString() : "";
          const note = details.error ? details.error : (item.ai && item.ai.type ? item.ai.type : "");
          return "<tr>" +
            "<td>" + escapeHTML(name) + "</td>" +
            '<td><span class="pill ' + item.type + '">' + item.type + "</span></td>" +
            "<td>" + when + "</td>" +
            "<td>" + escapeHTML(note) + "</td>" +
            "<td>" +
            '<button onclick="window.qfAction(\'requeue\', \'' + item.id + '\')">Requeue</button> ' +
            '<button onclick="window.qfAction(\'retry\', \'' + item.id + '\')">Retry</button> ' +
            '<button class="danger" onclick="window.qfAction(\'cancel\', \'' + item.id + '\')">Cancel</button>' +
            "</td></tr>";
        }).join("");
      }

      function escapeHTML(text) {
        return String(text).replace(/[&<>"']/g, (ch) => ({
          "&": "&amp;", "<": "&lt;", ">": "&gt;", '"': "&quot;", "'": "&#39;",
        })[ch]);
      }

      async function refresh() {
        const resp = await fetch("/api/admin/queue", {
          headers: { Authorization: "Bearer " + dom.token.value },
        });
        const payload = await resp.json();
        if (!payload.ok) {
          setStatus(payload.error || "snapshot failed", "bad");
          return;
        }
        items = payload.data.slice(0, CAP);
        render();
      }

      window.qfAction = async (action, targetId) => {
        if (action === "cancel" && !window.confirm("Are you sure you want to cancel processing for this document?")) {
          return;
        }
        const resp = await fetch("/api/admin/queue", {
          method: "POST",
          headers: {
            Authorization: "Bearer " + dom.token.value,
            "Content-Type": "application/json",
          },
          body: JSON.stringify({ action, targetId }),
        });
        const payload = await resp.json();
        if (!payload.ok) setStatus(payload.error || action + " failed", "bad");
        if (action === "cancel" && payload.ok) {
          items = items.filter((item) => item.id !== targetId);
          render();
        }
      };

      function connectFeed() {
        if (socket) socket.close();
        const proto = location.protocol === "https:" ? "wss:" : "ws:";
        socket = new WebSocket(proto + "//" + location.host + "/api/admin/feed");
        setStatus("connecting...");
        socket.onopen = () => {
          socket.send(JSON.stringify({ type: "auth", token: dom.token.value, tenant_id: dom.tenant.value }));
        };
        socket.onmessage = (raw) => {
          const frame = JSON.parse(raw.data);
          if (frame.type === "ready") setStatus("live", "live");
          if (frame.type === "error") setStatus(frame.message || "feed error", "bad");
          if (frame.type === "activity") { upsert(frame.data); render(); }
        };
        socket.onclose = () => setStatus("offline");
      }

      dom.connect.addEventListener("click", async () => {
        await refresh();
        connectFeed();
      });
      dom.filter.addEventListener("change", render);
    })();
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "Route not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
