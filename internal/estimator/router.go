package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// fallbackSpeed is 30 km/h in metres per second.
const fallbackSpeed = 8.33

// RouteGeometry is a GeoJSON line.
type RouteGeometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Route is one OSRM route.
type Route struct {
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Legs       json.RawMessage `json:"legs,omitempty"`
	Distance   float64         `json:"distance"`
	Duration   float64         `json:"duration"`
	WeightName string          `json:"weight_name"`
	Weight     float64         `json:"weight"`
}

// RouteResponse is the OSRM /route response shape.
type RouteResponse struct {
	Code      string          `json:"code"`
	Routes    []Route         `json:"routes"`
	Waypoints json.RawMessage `json:"waypoints,omitempty"`
}

// Router proxies route lookups to an OSRM server.
type Router struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// NewRouter creates a new Router.
func NewRouter(endpoint string, logger *slog.Logger) *Router {
	return &Router{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// Route returns a driving route from pickup to drop. If OSRM cannot
// answer, it returns a straight line in the same shape.
func (r *Router) Route(ctx context.Context, pickup, drop Point) *RouteResponse {
	route, err := r.fetch(ctx, pickup, drop)
	if err != nil {
		r.logger.Warn("osrm route failed, using straight line", "error", err)
		return StraightLineRoute(pickup, drop)
	}
	return route
}

func (r *Router) fetch(ctx context.Context, pickup, drop Point) (*RouteResponse, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		r.endpoint, pickup.Lng, pickup.Lat, drop.Lng, drop.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	seg := newrelic.StartExternalSegment(newrelic.FromContext(ctx), req)
	resp, err := r.http.Do(req)
	seg.Response = resp
	seg.End()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("osrm responded with %d: %s", resp.StatusCode, msg)
	}

	var out RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("osrm no route: %v", out.Code)
	}
	return &out, nil
}

// StraightLineRoute builds an OSRM-shaped route along the great circle at 30 km/h.
func StraightLineRoute(pickup, drop Point) *RouteResponse {
	meters := HaversineMeters(pickup, drop)
	seconds := meters / fallbackSpeed

	geometry, _ := json.Marshal(RouteGeometry{
		Type: "LineString",
		Coordinates: [][2]float64{
			{pickup.Lng, pickup.Lat},
			{drop.Lng, drop.Lat},
		},
	})

	return &RouteResponse{
		Code: "Ok",
		Routes: []Route{{
			Geometry:   geometry,
			Distance:   meters,
			Duration:   seconds,
			WeightName: "fallback",
			Weight:     seconds,
		}},
	}
}
