package integration

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/linkz"
	"github.com/zoobzio/linkz/integrations/ginlinkz"
	"github.com/zoobzio/linkz/integrations/muxlinkz"
	"github.com/zoobzio/linkz/integrations/restylinkz"
	"github.com/zoobzio/linkz/integrations/retrylinkz"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestServiceMeshSingleTrace drives one request through three services:
// gin frontend -> resty -> mux backend -> retryablehttp -> flaky inventory.
func TestServiceMeshSingleTrace(t *testing.T) {
	collector := NewMockCollector(t, "mesh", 100)

	// Inventory fails the first attempt.
	inventoryTracer := NewService(t, "inventory", collector)
	var attempts atomic.Int32
	inventoryMux := http.NewServeMux()
	inventoryMux.HandleFunc("/count/", func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "7")
	})
	inventory := httptest.NewServer(linkz.Middleware(inventoryTracer)(inventoryMux))
	defer inventory.Close()

	backendTracer := NewService(t, "backend", collector)
	retry := retrylinkz.New(backendTracer)
	retry.RetryWaitMin = time.Millisecond
	retry.RetryWaitMax = 5 * time.Millisecond
	retry.RetryMax = 2

	router := mux.NewRouter()
	router.HandleFunc("/stock/{sku}", func(w http.ResponseWriter, r *http.Request) {
		req, err := retryablehttp.NewRequestWithContext(r.Context(), http.MethodGet,
			inventory.URL+"/count/"+mux.Vars(r)["sku"], nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp, err := retry.Do(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(w, resp.Body)
	}).Methods(http.MethodGet)
	backend := httptest.NewServer(muxlinkz.Middleware(backendTracer, router))
	defer backend.Close()

	frontendTracer := NewService(t, "frontend", collector)
	resty := restylinkz.New(frontendTracer)
	engine := gin.New()
	engine.Use(ginlinkz.Middleware(frontendTracer))
	engine.GET("/orders/:id", func(c *gin.Context) {
		resp, err := resty.R().
			SetContext(c.Request.Context()).
			Get(backend.URL + "/stock/sku-" + c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			c.Status(http.StatusBadGateway)
			return
		}
		c.String(http.StatusOK, "stock=%s", resp.String())
	})
	frontend := httptest.NewServer(engine)
	defer frontend.Close()

	resp, err := http.Get(frontend.URL + "/orders/42")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stock=7", string(body))

	spans := collector.WaitForSpans(7, 2*time.Second)
	a := NewTraceAnalyzer(spans)
	t.Log("\n" + a.Print())

	assert.Equal(t, 1, a.Traces(), "every hop must join one trace")
	roots := a.Roots()
	require.Len(t, roots, 1)
	root := roots[0]
	assert.Equal(t, linkz.KindServer, root.Kind)
	assert.Equal(t, "GET /orders/:id", root.Name)
	assert.Equal(t, "frontend", root.LocalEndpoint.ServiceName)

	frontendCalls := a.Children(root)
	require.Len(t, frontendCalls, 1)
	assert.Equal(t, linkz.KindClient, frontendCalls[0].Kind)

	backendServer := a.Children(frontendCalls[0])
	require.Len(t, backendServer, 1)
	assert.Equal(t, "GET /stock/{sku}", backendServer[0].Name)
	assert.Equal(t, "/stock/{sku}", backendServer[0].Tags[linkz.TagHTTPRoute])
	assert.Equal(t, "backend", backendServer[0].LocalEndpoint.ServiceName)

	attemptsSpans := a.Children(backendServer[0])
	require.Len(t, attemptsSpans, 2, "each retry attempt is a sibling client span")
	assert.Equal(t, "503", attemptsSpans[0].Tags[linkz.TagError])
	assert.NotContains(t, attemptsSpans[1].Tags, linkz.TagError)
	assert.NotEqual(t, attemptsSpans[0].Context.SpanID, attemptsSpans[1].Context.SpanID)

	inventoryServers := a.ByKind(linkz.KindServer)
	var inventoryCount int
	for _, s := range inventoryServers {
		if s.LocalEndpoint.ServiceName == "inventory" {
			inventoryCount++
			assert.True(t, strings.HasPrefix(s.Tags[linkz.TagHTTPPath], "/count/"))
		}
	}
	assert.Equal(t, 2, inventoryCount)
}

// TestServiceMeshIncomingDecisionRespected checks that a caller's "not
// sampled" reaches every downstream service and nothing is reported.
func TestServiceMeshIncomingDecisionRespected(t *testing.T) {
	collector := NewMockCollector(t, "quiet", 100)

	downstreamTracer := NewService(t, "downstream", collector)
	seen := make(chan string, 1)
	downstream := httptest.NewServer(linkz.Middleware(downstreamTracer)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(linkz.HeaderSampled)
	})))
	defer downstream.Close()

	edgeTracer := NewService(t, "edge", collector)
	client := restylinkz.New(edgeTracer)
	engine := gin.New()
	engine.Use(ginlinkz.Middleware(edgeTracer))
	engine.GET("/", func(c *gin.Context) {
		_, err := client.R().SetContext(c.Request.Context()).Get(downstream.URL)
		if err != nil {
			_ = c.Error(err)
		}
		c.Status(http.StatusNoContent)
	})
	edge := httptest.NewServer(engine)
	defer edge.Close()

	req, err := http.NewRequest(http.MethodGet, edge.URL, nil)
	require.NoError(t, err)
	req.Header.Set(linkz.HeaderTraceID, "463ac35c9f6413ad")
	req.Header.Set(linkz.HeaderSpanID, "463ac35c9f6413ad")
	req.Header.Set(linkz.HeaderSampled, "0")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "0", <-seen)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, collector.GetAll(), fmt.Sprintf("unsampled trace reported %d spans", len(collector.GetAll())))
}
