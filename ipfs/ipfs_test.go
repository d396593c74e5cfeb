package ipfs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func TestGatewayURL(t *testing.T) {
	gw := "https://gw.example/"
	cases := map[string]string{
		"ipfs://bafyabc":                           "https://gw.example/ipfs/bafyabc",
		"ipfs://bafyabc/meta.json":                 "https://gw.example/ipfs/bafyabc/meta.json",
		"ipfs://ipfs/bafyabc":                      "https://gw.example/ipfs/bafyabc",
		"ipfs/bafyabc":                             "https://gw.example/ipfs/bafyabc",
		"/ipfs/bafyabc":                            "https://gw.example/ipfs/bafyabc",
		"https://ipfs.io/ipfs/bafyabc/img.png":     "https://gw.example/ipfs/bafyabc/img.png",
		"https://arweave.net/abc":                  "https://arweave.net/abc",
		"":                                         "",
		"  https://example.org/token.json  ":       "https://example.org/token.json",
		"https://nftstorage.link/ipfs/bafyabc?x=1": "https://gw.example/ipfs/bafyabc?x=1",
	}
	for in, want := range cases {
		assert.Equal(t, want, GatewayURL(gw, in), in)
	}
}

func TestPinJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Content  map[string]string `json:"pinataContent"`
			Metadata map[string]string `json:"pinataMetadata"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "TT", req.Content["symbol"])
		assert.Equal(t, "tt.json", req.Metadata["name"])
		_, _ = w.Write([]byte(`{"IpfsHash":"bafyjson","PinSize":42,"Timestamp":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL, JWT: "secret"}, zap.NewNop())
	out, err := c.PinJSON(context.Background(), "tt.json", map[string]string{"symbol": "TT"})
	require.NoError(t, err)
	assert.Equal(t, "bafyjson", out.CID)
	assert.Equal(t, "ipfs://bafyjson", out.URI())
}

func TestPinFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "logo.png", hdr.Filename)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, content)
		_, _ = w.Write([]byte(`{"IpfsHash":"bafyfile","PinSize":4}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL, JWT: "secret"}, nil)
	out, err := c.PinFile(context.Background(), "logo.png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "bafyfile", out.CID)
}

func TestPinErrors(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, err := c.PinJSON(context.Background(), "x", map[string]string{})
	assert.ErrorIs(t, err, ErrMissingJWT)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad jwt"}`))
	}))
	defer srv.Close()
	c = NewClient(Config{APIURL: srv.URL, JWT: "bad"}, nil)
	_, err = c.PinJSON(context.Background(), "x", map[string]string{})
	assert.ErrorIs(t, err, ErrStatus)
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/meta.json":
			_, _ = w.Write([]byte(`{"name":"Test","image":"ipfs://bafyimg"}`))
		case "/ipfs/bafymeta":
			_, _ = w.Write([]byte(`{"name":"Gateway"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{Gateway: srv.URL}, nil)
	var meta struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	require.NoError(t, c.FetchJSON(context.Background(), srv.URL+"/meta.json", &meta, time.Second))
	assert.Equal(t, "Test", meta.Name)
	assert.Equal(t, srv.URL+"/ipfs/bafyimg", c.GatewayURL(meta.Image))

	require.NoError(t, c.FetchJSON(context.Background(), "ipfs://bafymeta", &meta, time.Second))
	assert.Equal(t, "Gateway", meta.Name)

	err := c.FetchJSON(context.Background(), srv.URL+"/missing", &meta, time.Second)
	assert.ErrorIs(t, err, ErrStatus)

	err = c.FetchJSON(context.Background(), "ar://whatever", &meta, time.Second)
	assert.Error(t, err)
}

func TestFetchJSONFollowsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx123":
			http.Redirect(w, r, "/gateway/tx123", http.StatusFound)
		case "/gateway/tx123":
			_, _ = w.Write([]byte(`{"name":"Arweave Token","image":"https://arweave.net/img"}`))
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		case "/huge":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"`))
			_, _ = w.Write(make([]byte, MaxResponseSize+1))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{Gateway: srv.URL}, nil)
	var meta struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	require.NoError(t, c.FetchJSON(context.Background(), srv.URL+"/tx123", &meta, time.Second))
	assert.Equal(t, "Arweave Token", meta.Name)
	assert.Equal(t, "https://arweave.net/img", meta.Image)

	err := c.FetchJSON(context.Background(), srv.URL+"/loop", &meta, time.Second)
	assert.Error(t, err)

	err = c.FetchJSON(context.Background(), srv.URL+"/huge", &meta, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fasthttp.ErrBodyTooLarge), err.Error())
}
