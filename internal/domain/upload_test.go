package domain

import (
	"encoding/json"
	"testing"
)

func TestGeolocationDerivedFromResult(t *testing.T) {
	upload := &ImageUpload{
		Result: json.RawMessage(`{"image_id":"abc","geolocation":{"lat":40.12345,"lon":69.54321},"model":"exif-v1"}`),
	}

	lat, lon, ok := upload.Geolocation()
	if !ok {
		t.Fatalf("expected geolocation to be present")
	}
	if lat != 40.12345 {
		t.Fatalf("unexpected latitude: %v", lat)
	}
	if lon != 69.54321 {
		t.Fatalf("unexpected longitude: %v", lon)
	}
}

func TestGeolocationAbsentWithoutResult(t *testing.T) {
	cases := map[string]*ImageUpload{
		"no result":          {},
		"result without geo": {Result: json.RawMessage(`{"image_id":"abc"}`)},
		"malformed result":   {Result: json.RawMessage(`{"geolocation":`)},
		"null geolocation":   {Result: json.RawMessage(`{"geolocation":null}`)},
	}
	for name, upload := range cases {
		if _, _, ok := upload.Geolocation(); ok {
			t.Fatalf("%s: expected no geolocation", name)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusProcessing.Terminal() {
		t.Fatalf("processing must not be terminal")
	}
	if !StatusSuccess.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("success and failed must be terminal")
	}
}

func TestEventAndSourceValidation(t *testing.T) {
	if !EventGetCoordinate.Valid() {
		t.Fatalf("get_coordinate must be a valid event")
	}
	if Event("resize").Valid() {
		t.Fatalf("unknown event must be invalid")
	}
	for _, source := range []Source{SourceWeb, SourceMobile, SourceAPI, SourceEtc} {
		if !source.Valid() {
			t.Fatalf("source %s must be valid", source)
		}
	}
	if Source("cli").Valid() {
		t.Fatalf("unknown source must be invalid")
	}
}
