package lsp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/EmNudge/wat-lsp/internal/logger"
	"github.com/EmNudge/wat-lsp/internal/lsp/cache"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

// Visualizer serves a live call graph of the function under the editor's
// cursor. The focus follows hover and definition requests.
type Visualizer struct {
	session *cache.Session
	srv     *http.Server

	mu  sync.Mutex
	uri string
	pos parser.Position
}

func NewVisualizer(session *cache.Session) *Visualizer {
	v := &Visualizer{session: session}
	mux := http.NewServeMux()
	mux.HandleFunc("/", v.handleIndex)
	mux.HandleFunc("/graph", v.handleGraph)
	v.srv = &http.Server{Handler: mux}
	return v
}

// Start listens on addr, for example "localhost:7070", and serves in the
// background.
func (v *Visualizer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Printf("Visualizer serving on http://%s", ln.Addr())
	go func() {
		if err := v.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Visualizer error: %v", err)
		}
	}()
	return nil
}

func (v *Visualizer) Close(ctx context.Context) error {
	return v.srv.Shutdown(ctx)
}

func (v *Visualizer) SetFocus(uri string, pos parser.Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.uri = uri
	v.pos = pos
}

// Graph returns the Mermaid source for the current focus.
func (v *Visualizer) Graph() string {
	v.mu.Lock()
	uri, pos := v.uri, v.pos
	v.mu.Unlock()

	snap := v.session.Snapshot(uri)
	if snap == nil {
		return "graph TD\n  Start[Open a .wat file and hover a function]\n"
	}
	return snap.Mermaid(snap.Symbols.FunctionAt(pos))
}

func (v *Visualizer) handleGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, v.Graph())
}

func (v *Visualizer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>WAT Call Graph</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <script>
        mermaid.initialize({ startOnLoad: true, theme: 'base' });
        function refresh() {
            fetch('/graph')
                .then(response => response.text())
                .then(text => {
                    const container = document.getElementById('graph-container');
                    if (container.getAttribute('data-last') === text) return;
                    container.setAttribute('data-last', text);
                    container.removeAttribute('data-processed');
                    container.innerHTML = text;
                    mermaid.run({ nodes: [container] });
                })
                .catch(err => console.error(err));
        }
        setInterval(refresh, 1000);
    </script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f4f7f6; margin: 0; color: #2c3e50; }
        header { background: #654ff0; color: white; padding: 1rem 2.5rem; }
        h1 { margin: 0; font-size: 1.25rem; font-weight: 600; }
        main { padding: 2rem; max-width: 1200px; margin: 0 auto; }
        #graph-container { background: white; padding: 2.5rem; border-radius: 12px; min-height: 500px; border: 1px solid #e2e8f0; }
    </style>
</head>
<body>
    <header><h1>WAT Call Graph</h1></header>
    <main>
        <div id="graph-container" class="mermaid">
            graph TD
            A[Initializing...]
        </div>
    </main>
</body>
</html>
`
