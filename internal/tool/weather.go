package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"toolpilot/internal/domain"
)

const defaultWeatherURL = "https://wttr.in"

// WeatherTool reports current conditions from wttr.in's JSON format.
type WeatherTool struct {
	endpoint string
	client   *http.Client
}

func NewWeatherTool(endpoint string, client *http.Client) *WeatherTool {
	if endpoint == "" {
		endpoint = defaultWeatherURL
	}
	if client == nil {
		client = &http.Client{Timeout: searchTimeout}
	}
	return &WeatherTool{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func (t *WeatherTool) Descriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		Name:        "get_weather",
		Description: "Get the current weather for a city or location.",
		InputSchema: Schema(map[string]Param{
			"location": {Type: "string", Description: "City or location name, e.g. 'Paris' or 'New York'"},
		}, "location"),
	}
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	location, err := requireString(args, "location")
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s?format=j1", t.endpoint, url.PathEscape(location))
	var resp wttrResponse
	if err := getJSON(ctx, t.client, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("weather lookup: %w", err)
	}
	if len(resp.CurrentCondition) == 0 {
		return nil, fmt.Errorf("no weather data for %q", location)
	}

	cur := resp.CurrentCondition[0]
	report := WeatherReport{
		Location:      location,
		TemperatureC:  cur.TempC,
		FeelsLikeC:    cur.FeelsLikeC,
		Humidity:      cur.Humidity,
		WindKmph:      cur.WindspeedKmph,
		Precipitation: cur.PrecipMM,
	}
	if len(cur.WeatherDesc) > 0 {
		report.Conditions = cur.WeatherDesc[0].Value
	}
	if len(resp.NearestArea) > 0 {
		area := resp.NearestArea[0]
		parts := []string{first(area.AreaName), first(area.Region), first(area.Country)}
		report.ResolvedArea = strings.Join(nonEmpty(parts), ", ")
	}
	return report, nil
}

// WeatherReport is the get_weather result.
type WeatherReport struct {
	Location      string `json:"location"`
	ResolvedArea  string `json:"resolved_area,omitempty"`
	Conditions    string `json:"conditions"`
	TemperatureC  string `json:"temperature_c"`
	FeelsLikeC    string `json:"feels_like_c"`
	Humidity      string `json:"humidity_pct"`
	WindKmph      string `json:"wind_kmph"`
	Precipitation string `json:"precipitation_mm"`
}

type wttrValue struct {
	Value string `json:"value"`
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC         string      `json:"temp_C"`
		FeelsLikeC    string      `json:"FeelsLikeC"`
		Humidity      string      `json:"humidity"`
		WindspeedKmph string      `json:"windspeedKmph"`
		PrecipMM      string      `json:"precipMM"`
		WeatherDesc   []wttrValue `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []wttrValue `json:"areaName"`
		Region   []wttrValue `json:"region"`
		Country  []wttrValue `json:"country"`
	} `json:"nearest_area"`
}

func first(vs []wttrValue) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0].Value
}

func nonEmpty(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var _ Capability = (*WeatherTool)(nil)
