package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/bindlekit/bindle/internal/testkit"
	"github.com/bindlekit/bindle/pkg/bindle"
	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/invoice"
	"github.com/bindlekit/bindle/pkg/search"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg, err := bindle.Open(context.Background(), bindle.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	srv := httptest.NewServer(New(reg, core.LimitsConfig{}, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func encodeInvoice(t *testing.T, inv *invoice.Invoice) []byte {
	t.Helper()
	b, err := invoice.NewCodec(core.LimitsConfig{}).Encode(inv)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return b
}

func postInvoice(t *testing.T, srv *httptest.Server, inv *invoice.Invoice) *http.Response {
	t.Helper()
	res, err := http.Post(srv.URL+"/v1/_i", "application/toml", bytes.NewReader(encodeInvoice(t, inv)))
	if err != nil {
		t.Fatalf("POST /v1/_i failed: %v", err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response, v interface{}) {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	if err := toml.Unmarshal(body, v); err != nil {
		t.Fatalf("response is not valid TOML: %v\n%s", err, body)
	}
}

func uploadParcel(t *testing.T, srv *httptest.Server, fix testkit.ParcelFixture) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/v1/_p/"+fix.Label.SHA256+"?name="+fix.Label.Name,
		bytes.NewReader(fix.Content))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", fix.Label.MediaType)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/_p failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		t.Fatalf("parcel upload returned %d: %s", res.StatusCode, body)
	}

	// The response must echo the verified label as valid TOML
	var label invoice.Label
	decodeBody(t, res, &label)
	if label.SHA256 != fix.Label.SHA256 {
		t.Fatalf("echoed label mismatch: %+v", label)
	}
}

func TestSuccessfulWorkflow(t *testing.T) {
	srv := newServer(t)

	fix := testkit.NewParcel("warpcore.wasm", "application/wasm", []byte("matter-antimatter reaction assembly"))

	// Upload the parcel first, then create an invoice referencing it
	uploadParcel(t, srv, fix)

	v1 := testkit.NewInvoice("enterprise.com/warpcore", "1.0.0", fix.Label)
	res := postInvoice(t, srv, v1)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for complete bindle, got %d", res.StatusCode)
	}
	var created invoice.CreateResponse
	decodeBody(t, res, &created)
	if created.Missing != nil {
		t.Fatalf("expected no missing parcels, got %+v", created.Missing)
	}

	// A second version with an extra, not-yet-uploaded parcel is accepted
	// pending content
	pending := testkit.NewParcel("dilithium.dat", "application/octet-stream", []byte("crystal matrix"))
	v2 := testkit.NewInvoice("enterprise.com/warpcore", "2.0.0", fix.Label, pending.Label)
	res = postInvoice(t, srv, v2)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for incomplete bindle, got %d", res.StatusCode)
	}
	decodeBody(t, res, &created)
	if len(created.Missing) != 1 || created.Missing[0].SHA256 != pending.Label.SHA256 {
		t.Fatalf("expected one missing parcel, got %+v", created.Missing)
	}

	// Fetch the invoice
	res, err := http.Get(srv.URL + "/v1/_i/enterprise.com/warpcore/1.0.0")
	if err != nil {
		t.Fatalf("GET invoice failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var inv invoice.Invoice
	decodeBody(t, res, &inv)
	if inv.Key() != "enterprise.com/warpcore/1.0.0" {
		t.Fatalf("unexpected invoice %q", inv.Key())
	}

	// Fetch the parcel: byte-identical content, stored media type
	res, err = http.Get(srv.URL + "/v1/_p/" + fix.Label.SHA256)
	if err != nil {
		t.Fatalf("GET parcel failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/wasm" {
		t.Errorf("expected stored media type, got %q", ct)
	}
	body, _ := io.ReadAll(res.Body)
	if !bytes.Equal(body, fix.Content) {
		t.Error("parcel content mismatch")
	}
}

func TestInvoiceValidationResponses(t *testing.T) {
	srv := newServer(t)

	t.Run("MissingVersion", func(t *testing.T) {
		doc := `bindleVersion = "1.0.0"

[bindle]
name = "enterprise.com/broken"
`
		res, err := http.Post(srv.URL+"/v1/_i", "application/toml", bytes.NewReader([]byte(doc)))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", res.StatusCode)
		}
		var er ErrorResponse
		decodeBody(t, res, &er)
		if er.Error == "" {
			t.Error("expected an error message")
		}
	})

	t.Run("AlreadyCreated", func(t *testing.T) {
		inv := testkit.NewInvoice("enterprise.com/dup", "1.0.0")
		res := postInvoice(t, srv, inv)
		res.Body.Close()
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", res.StatusCode)
		}

		res = postInvoice(t, srv, inv)
		defer res.Body.Close()
		if res.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", res.StatusCode)
		}
	})

	t.Run("NotTOML", func(t *testing.T) {
		res, err := http.Post(srv.URL+"/v1/_i", "application/toml", bytes.NewReader([]byte("not toml at all {")))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", res.StatusCode)
		}
	})
}

func TestParcelValidationResponses(t *testing.T) {
	srv := newServer(t)

	t.Run("DigestMismatch", func(t *testing.T) {
		fix := testkit.NewParcel("data", "text/plain", []byte("declared"))
		res, err := http.Post(srv.URL+"/v1/_p/"+fix.Label.SHA256, "text/plain",
			bytes.NewReader([]byte("tampered")))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", res.StatusCode)
		}
	})

	t.Run("UnknownParcel", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/v1/_p/" + "0000000000000000000000000000000000000000000000000000000000000000")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", res.StatusCode)
		}
	})
}

func TestYankWorkflow(t *testing.T) {
	srv := newServer(t)

	inv := testkit.NewInvoice("enterprise.com/retired", "1.0.0")
	res := postInvoice(t, srv, inv)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/_i/enterprise.com/retired/1.0.0", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	// Normal resolution is suppressed
	res, err = http.Get(srv.URL + "/v1/_i/enterprise.com/retired/1.0.0")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for yanked invoice, got %d", res.StatusCode)
	}

	// Explicit opt-in still resolves
	res, err = http.Get(srv.URL + "/v1/_i/enterprise.com/retired/1.0.0?yanked=true")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with yanked=true, got %d", res.StatusCode)
	}
	var got invoice.Invoice
	decodeBody(t, res, &got)
	if !got.Yanked {
		t.Error("expected yanked flag in document")
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv := newServer(t)

	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		res := postInvoice(t, srv, testkit.NewInvoice("enterprise.com/warpcore", v))
		res.Body.Close()
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("seed create returned %d", res.StatusCode)
		}
	}

	t.Run("ShortAliases", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/v1/_q?q=warpcore&v=%5E1.0.0&l=10")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.StatusCode)
		}
		var m search.Matches
		decodeBody(t, res, &m)
		if m.Total != 2 {
			t.Errorf("expected 2 matches for ^1.0.0, got %d", m.Total)
		}
	})

	t.Run("BadLimit", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/v1/_q?limit=banana")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", res.StatusCode)
		}
	})
}
