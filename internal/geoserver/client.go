// Package geoserver drives the map server's REST configuration API: feature
// type registration, styling, and layer toggles.
package geoserver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client is a long-lived handle on one GeoServer instance.
type Client struct {
	base     string
	username string
	password string
	http     *http.Client
}

// New creates a client for the REST endpoint at base (".../rest").
func New(base, username, password string) *Client {
	return &Client{
		base:     strings.TrimSuffix(base, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// AddFeatureType publishes a feature table as a layer in the given workspace
// and datastore, declaring its projection.
func (c *Client) AddFeatureType(ctx context.Context, workspace, datastore, layerName, projection string) bool {
	body := fmt.Sprintf(
		"<featureType><name>%s</name><nativeName>%s</nativeName><srs>%s</srs><enabled>true</enabled></featureType>",
		layerName, layerName, projection)
	path := fmt.Sprintf("/workspaces/%s/datastores/%s/featuretypes", workspace, datastore)
	return c.do(ctx, http.MethodPost, path, "text/xml", body)
}

// AddStyle uploads an SLD document under the given style name.
func (c *Client) AddStyle(ctx context.Context, styleName, sld string) bool {
	body := fmt.Sprintf("<style><name>%s</name><filename>%s.sld</filename></style>", styleName, styleName)
	if !c.do(ctx, http.MethodPost, "/styles", "text/xml", body) {
		return false
	}
	return c.do(ctx, http.MethodPut, "/styles/"+styleName, "application/vnd.ogc.sld+xml", sld)
}

// UpdateLayerStyle sets a layer's default style.
func (c *Client) UpdateLayerStyle(ctx context.Context, layerName, styleName string) bool {
	body := fmt.Sprintf("<layer><defaultStyle><name>%s</name></defaultStyle></layer>", styleName)
	return c.do(ctx, http.MethodPut, "/layers/"+layerName, "text/xml", body)
}

// UpdateLayerEnabled toggles whether a layer is served.
func (c *Client) UpdateLayerEnabled(ctx context.Context, layerName string, enabled bool) bool {
	body := fmt.Sprintf("<layer><enabled>%t</enabled></layer>", enabled)
	return c.do(ctx, http.MethodPut, "/layers/"+layerName, "text/xml", body)
}

// AddImageLayer publishes the accumulated image features for a finished
// image layer as a point layer in the image workspace.
func (c *Client) AddImageLayer(ctx context.Context, workspace, datastore, layerID, title string) bool {
	body := fmt.Sprintf(
		"<featureType><name>%s</name><title>%s</title><srs>EPSG:4326</srs><enabled>true</enabled></featureType>",
		layerID, title)
	path := fmt.Sprintf("/workspaces/%s/datastores/%s/featuretypes", workspace, datastore)
	return c.do(ctx, http.MethodPost, path, "text/xml", body)
}

func (c *Client) do(ctx context.Context, method, path, contentType, body string) bool {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, strings.NewReader(body))
	if err != nil {
		log.Printf("geoserver: build %s %s: %v", method, path, err)
		return false
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("geoserver: %s %s: %v", method, path, err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		log.Printf("geoserver: %s %s: status %d", method, path, resp.StatusCode)
		return false
	}
	return true
}
