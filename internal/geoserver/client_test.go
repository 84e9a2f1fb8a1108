package geoserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        string
	user        string
	pass        string
}

func newRecordingServer(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		requests = append(requests, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
			user:        user,
			pass:        pass,
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestAddFeatureType(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusCreated)
	c := New(srv.URL+"/", "admin", "geoserver")

	ok := c.AddFeatureType(context.Background(), "geolayers", "shapefiles", "perimeter_123", "EPSG:3857")
	if !ok {
		t.Fatalf("AddFeatureType returned false")
	}

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.method != http.MethodPost {
		t.Errorf("method = %s", req.method)
	}
	if req.path != "/workspaces/geolayers/datastores/shapefiles/featuretypes" {
		t.Errorf("path = %s", req.path)
	}
	if req.user != "admin" || req.pass != "geoserver" {
		t.Errorf("basic auth = %s:%s", req.user, req.pass)
	}
	if !strings.Contains(req.body, "<name>perimeter_123</name>") ||
		!strings.Contains(req.body, "<srs>EPSG:3857</srs>") {
		t.Errorf("body = %s", req.body)
	}
}

func TestAddStyleTwoPhase(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK)
	c := New(srv.URL, "admin", "geoserver")

	sld := `<StyledLayerDescriptor/>`
	if !c.AddStyle(context.Background(), "perimeter-style", sld) {
		t.Fatalf("AddStyle returned false")
	}

	if len(*requests) != 2 {
		t.Fatalf("expected create then upload, got %d requests", len(*requests))
	}
	create, upload := (*requests)[0], (*requests)[1]
	if create.method != http.MethodPost || create.path != "/styles" {
		t.Errorf("create request = %s %s", create.method, create.path)
	}
	if upload.method != http.MethodPut || upload.path != "/styles/perimeter-style" {
		t.Errorf("upload request = %s %s", upload.method, upload.path)
	}
	if upload.contentType != "application/vnd.ogc.sld+xml" {
		t.Errorf("upload content type = %s", upload.contentType)
	}
	if upload.body != sld {
		t.Errorf("upload body = %s", upload.body)
	}
}

func TestUpdateLayerEnabled(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK)
	c := New(srv.URL, "admin", "geoserver")

	if !c.UpdateLayerEnabled(context.Background(), "perimeter_123", true) {
		t.Fatalf("UpdateLayerEnabled returned false")
	}
	req := (*requests)[0]
	if req.path != "/layers/perimeter_123" || !strings.Contains(req.body, "<enabled>true</enabled>") {
		t.Errorf("request = %s %s body %s", req.method, req.path, req.body)
	}
}

func TestServerErrorReturnsFalse(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusInternalServerError)
	c := New(srv.URL, "admin", "geoserver")

	if c.AddFeatureType(context.Background(), "ws", "ds", "layer", "EPSG:3857") {
		t.Fatalf("expected false on server error")
	}
	if c.UpdateLayerStyle(context.Background(), "layer", "style") {
		t.Fatalf("expected false on server error")
	}
}

func TestUnreachableServerReturnsFalse(t *testing.T) {
	c := New("http://127.0.0.1:1", "admin", "geoserver")
	if c.AddImageLayer(context.Background(), "ws", "ds", "img-1", "Photos") {
		t.Fatalf("expected false when the server is unreachable")
	}
}
