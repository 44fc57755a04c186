package internal

import (
	"fmt"
	"math"
	"strings"
)

var weatherCodes = map[int]string{
	0:  "Clear",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Foggy",
	51: "Light drizzle",
	53: "Drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Snow",
	75: "Heavy snow",
	80: "Slight showers",
	81: "Showers",
	82: "Heavy showers",
	95: "Thunderstorm",
	96: "Thunderstorm with hail",
}

// FormatExecutionResult returns a one-line human summary for result shapes it
// recognises (currently weather lookups). ok is false when the raw JSON
// should be shown instead.
func FormatExecutionResult(result map[string]any) (summary string, ok bool) {
	if result == nil {
		return "", false
	}

	// Unwrap {success, result} envelopes.
	payload := result
	if inner, isMap := result["result"].(map[string]any); isMap {
		payload = inner
	}

	city, hasCity := payload["city"]
	current, hasCurrent := payload["current_weather"].(map[string]any)
	if !hasCity || city == nil || !hasCurrent {
		return "", false
	}

	tempUnit, windUnit := "°C", "km/h"
	if units, isMap := payload["units"].(map[string]any); isMap {
		if u, isStr := units["temperature_2m"].(string); isStr {
			tempUnit = u
		}
		if u, isStr := units["wind_speed_10m"].(string); isStr {
			windUnit = u
		}
	}

	temp := current["temperature_2m"]
	var parts []string
	if temp != nil {
		parts = append(parts, fmt.Sprintf("%v%s", temp, tempUnit))
	}
	if feels := current["apparent_temperature"]; feels != nil && feels != temp {
		parts = append(parts, fmt.Sprintf("feels like %v%s", feels, tempUnit))
	}
	if humidity := current["relative_humidity_2m"]; humidity != nil {
		parts = append(parts, fmt.Sprintf("%v%% humidity", humidity))
	}
	if wind := current["wind_speed_10m"]; wind != nil {
		parts = append(parts, fmt.Sprintf("wind %v %s", wind, windUnit))
	}
	if label, found := WeatherCodeLabel(current["weather_code"]); found {
		parts = append(parts, label)
	}

	return fmt.Sprintf("%v: %s.", city, strings.Join(parts, ", ")), true
}

// WeatherCodeLabel maps a WMO weather code to a short label
func WeatherCodeLabel(code any) (string, bool) {
	var n float64
	switch v := code.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	default:
		return "", false
	}
	if n != math.Trunc(n) {
		return "", false
	}
	label, ok := weatherCodes[int(n)]
	return label, ok
}
