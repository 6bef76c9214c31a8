package oauth

// signInCompleteHTML is served once the redirect has been captured, so
// the browser tab the user signed in with shows a clear end state.
const signInCompleteHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>MapGrid - Signed In</title>
  <style>
    body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
           display: flex; align-items: center; justify-content: center;
           height: 100vh; margin: 0; background: #f6f8fa; color: #24292f; }
    .card { background: #fff; border: 1px solid #d0d7de; border-radius: 8px;
            padding: 40px 48px; text-align: center; }
    h1 { font-size: 20px; margin: 0 0 8px; }
    p { margin: 0; color: #57606a; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Signed in to MapGrid</h1>
    <p>You can close this tab and return to the application.</p>
  </div>
</body>
</html>`
