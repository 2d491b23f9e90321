package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/invoice"
	"github.com/bindlekit/bindle/pkg/search"
)

// maxInvoiceBody bounds invoice documents; parcel bodies are bounded by the
// store's own parcel size limit.
const maxInvoiceBody = 4 << 20

func (f *Frontend) handleCreateInvoice(ctx context.Context, w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvoiceBody))
	if err != nil {
		return fmt.Errorf("%w: reading request body: %v", core.ErrStorage, err)
	}

	inv, err := f.codec.Decode(body)
	if err != nil {
		return err
	}

	res, err := f.registry.CreateInvoice(ctx, inv)
	if err != nil {
		return err
	}

	// Complete bindles are created; incomplete ones are accepted pending
	// parcel uploads.
	status := http.StatusCreated
	if res.Missing != nil {
		status = http.StatusAccepted
	}
	writeTOML(w, status, res)
	return nil
}

// splitBindlePath splits "/<name>/<version>" where the name itself may
// contain slashes; the version is the final segment.
func splitBindlePath(p string) (name, version string, err error) {
	p = strings.Trim(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx <= 0 || idx == len(p)-1 {
		return "", "", badRequest("expected /<name>/<version>, got %q", p)
	}
	return p[:idx], p[idx+1:], nil
}

func (f *Frontend) handleGetInvoice(ctx context.Context, w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	name, version, err := splitBindlePath(p.ByName("bindle"))
	if err != nil {
		return err
	}

	inv, err := f.registry.GetInvoice(ctx, name, version)
	if err != nil {
		return err
	}

	// A yanked invoice resolves only when the caller explicitly asks for
	// yanked content.
	if inv.Yanked {
		showYanked, err := parseBoolParam(r, "yanked")
		if err != nil {
			return err
		}
		if !showYanked {
			return fmt.Errorf("%w: invoice %s/%s", core.ErrNotFound, name, version)
		}
	}

	writeTOML(w, http.StatusOK, inv)
	return nil
}

func (f *Frontend) handleYankInvoice(ctx context.Context, w http.ResponseWriter, _ *http.Request, p httprouter.Params) error {
	name, version, err := splitBindlePath(p.ByName("bindle"))
	if err != nil {
		return err
	}

	if err := f.registry.YankInvoice(ctx, name, version); err != nil {
		return err
	}

	f.logger.Info("invoice yanked", zap.String("name", name), zap.String("version", version))
	writeTOML(w, http.StatusOK, struct {
		Message string `toml:"message"`
	}{Message: "invoice yanked"})
	return nil
}

func (f *Frontend) handlePutParcel(ctx context.Context, w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	sha := p.ByName("sha")

	if r.ContentLength < 0 {
		return badRequest("parcel upload requires a Content-Length")
	}

	mediaType := r.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = sha
	}

	label := invoice.Label{
		SHA256:    sha,
		MediaType: mediaType,
		Name:      name,
		Size:      uint64(r.ContentLength),
	}

	if err := f.registry.PutParcel(ctx, label, r.Body); err != nil {
		return err
	}

	// Echo the verified label back to the caller
	writeTOML(w, http.StatusOK, label)
	return nil
}

func (f *Frontend) handleGetParcel(ctx context.Context, w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	rc, label, err := f.registry.GetParcel(ctx, p.ByName("sha"))
	if err != nil {
		return err
	}
	defer rc.Close()

	w.Header().Set("Content-Type", label.MediaType)
	w.Header().Set("Content-Length", strconv.FormatUint(label.Size, 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return nil
	}

	_, err = io.Copy(w, rc)
	return err
}

func (f *Frontend) handleQuery(ctx context.Context, w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	opts, err := parseQueryOptions(r)
	if err != nil {
		return err
	}

	matches, err := f.registry.Query(ctx, opts)
	if err != nil {
		return err
	}

	writeTOML(w, http.StatusOK, matches)
	return nil
}

// parseQueryOptions reads the query parameters, accepting the short aliases
// q/v/o/l for query/version/offset/limit.
func parseQueryOptions(r *http.Request) (search.Options, error) {
	values := r.URL.Query()

	param := func(long, short string) string {
		if v := values.Get(long); v != "" {
			return v
		}
		return values.Get(short)
	}

	opts := search.Options{
		Query:   param("query", "q"),
		Version: param("version", "v"),
	}

	if raw := param("offset", "o"); raw != "" {
		offset, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return search.Options{}, badRequest("offset %q is not a non-negative integer", raw)
		}
		opts.Offset = offset
	}
	if raw := param("limit", "l"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return search.Options{}, badRequest("limit %q is not an integer between 0 and 255", raw)
		}
		opts.Limit = uint8(limit)
	}

	var err error
	if opts.Strict, err = parseBoolParam(r, "strict"); err != nil {
		return search.Options{}, err
	}
	if opts.Yanked, err = parseBoolParam(r, "yanked"); err != nil {
		return search.Options{}, err
	}

	return opts, nil
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s %q is not a boolean", name, raw)
	}
	return v, nil
}
