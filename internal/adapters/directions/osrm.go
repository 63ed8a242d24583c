package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/ports"
)

// OSRMProvider implements DirectionsProvider against an OSRM routing server.
//
// It handles profile mapping, response decoding and transient-failure retry
// with exponential backoff. Caching and fallback policy belong to the caller.
// The provider is safe for concurrent use.
type OSRMProvider struct {
	session *http.Client
	baseURL string
}

func NewOSRMProvider(baseURL string) (*OSRMProvider, error) {
	if baseURL == "" {
		return nil, errors.New("OSRM base URL is empty")
	}
	return &OSRMProvider{
		session: &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}, nil
}

// OSRM profile names differ from the domain's travel modes.
func profileFor(mode domain.TravelMode) string {
	switch mode {
	case domain.ModeWalking:
		return "foot"
	case domain.ModeCycling:
		return "bike"
	default:
		return "driving"
	}
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns travel metrics and the path between two coordinates.
func (o *OSRMProvider) Route(ctx context.Context, origin, dest domain.Coordinates, mode domain.TravelMode) (ports.DirectionsResult, error) {
	endpoint := fmt.Sprintf(
		"%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=geojson&alternatives=false",
		o.baseURL, profileFor(mode),
		origin.Lon, origin.Lat, dest.Lon, dest.Lat,
	)

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodGet, endpoint)
	})
	if err != nil {
		return ports.DirectionsResult{}, fmt.Errorf("osrm route request: %w", err)
	}
	defer resp.Body.Close()

	var rr routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return ports.DirectionsResult{}, fmt.Errorf("decode route response: %w", err)
	}
	if rr.Code != "Ok" || len(rr.Routes) == 0 {
		return ports.DirectionsResult{}, fmt.Errorf("osrm returned code %q with %d routes", rr.Code, len(rr.Routes))
	}

	route := rr.Routes[0]
	path := make([]domain.Coordinates, 0, len(route.Geometry.Coordinates))
	for _, c := range route.Geometry.Coordinates {
		if len(c) != 2 {
			return ports.DirectionsResult{}, fmt.Errorf("osrm geometry point has %d components", len(c))
		}
		path = append(path, domain.Coordinates{Lon: c[0], Lat: c[1]})
	}

	return ports.DirectionsResult{
		DistanceMeters:  int(math.Round(route.Distance)),
		DurationSeconds: int(math.Round(route.Duration)),
		Path:            path,
	}, nil
}
