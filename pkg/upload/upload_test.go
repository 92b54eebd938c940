package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viraltok/tokmint/pkg/types"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func fastPolicy() Policy {
	return Policy{
		MaxTries:        3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		AttemptTimeout:  2 * time.Second,
	}
}

type countingServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newServer(t *testing.T, h func(w http.ResponseWriter, r *http.Request, hit int32)) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := cs.hits.Add(1)
		h(w, r, n)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func okHandler(body string) func(http.ResponseWriter, *http.Request, int32) {
	return func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func statusHandler(code int) func(http.ResponseWriter, *http.Request, int32) {
	return func(w http.ResponseWriter, _ *http.Request, _ int32) {
		http.Error(w, "nope", code)
	}
}

func sampleRequest() Request {
	return Request{
		Image:    []byte("\x89PNG\r\n\x1a\nfakeimage"),
		FileName: "cat.png",
		Name:     "Dance Cat",
		Symbol:   "DCAT",
	}
}

func TestUploadFallsThroughToFirstSuccess(t *testing.T) {
	rejecting := newServer(t, statusHandler(http.StatusBadRequest))
	malformed := newServer(t, okHandler(`{"success":true}`))
	good := newServer(t, okHandler(`{"success":true,"metadataUri":"https://ipfs.io/ipfs/`+testCID+`","metadata":{"image":"https://ipfs.io/ipfs/`+testCID+`"}}`))
	never := newServer(t, okHandler(`{"metadataUri":"https://ipfs.io/ipfs/other"}`))

	c := NewClient([]Backend{
		{Name: "rejecting", Endpoint: rejecting.URL},
		{Name: "malformed", Endpoint: malformed.URL},
		{Name: "good", Endpoint: good.URL},
		{Name: "never", Endpoint: never.URL},
	}, WithPolicy(fastPolicy()))

	res, err := c.Upload(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "good", res.Backend)
	assert.Equal(t, "https://ipfs.io/ipfs/"+testCID, res.MetadataURI)

	// 4xx and malformed bodies are not retried.
	assert.Equal(t, int32(1), rejecting.hits.Load())
	assert.Equal(t, int32(1), malformed.hits.Load())
	assert.Equal(t, int32(1), good.hits.Load())
	assert.Equal(t, int32(0), never.hits.Load())
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	flaky := newServer(t, func(w http.ResponseWriter, r *http.Request, hit int32) {
		if hit < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		okHandler(`{"metadataUri":"https://ipfs.io/ipfs/` + testCID + `"}`)(w, r, hit)
	})

	c := NewClient([]Backend{{Name: "flaky", Endpoint: flaky.URL}}, WithPolicy(fastPolicy()))
	res, err := c.Upload(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "flaky", res.Backend)
	assert.Equal(t, int32(3), flaky.hits.Load())
}

func TestUploadAllBackendsFail(t *testing.T) {
	first := newServer(t, statusHandler(http.StatusInternalServerError))
	second := newServer(t, okHandler(`not json`))

	c := NewClient([]Backend{
		{Name: "pump.fun", Endpoint: first.URL},
		{Name: "ipfs-local", Endpoint: second.URL},
	}, WithPolicy(fastPolicy()))

	_, err := c.Upload(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUploadFailed)

	var ue *types.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "ipfs-local", ue.Backend)
	assert.Equal(t, 2, ue.Attempts)
	assert.Contains(t, err.Error(), "ipfs-local")
	assert.Contains(t, err.Error(), "pump.fun")

	// 5xx is retried up to MaxTries.
	assert.Equal(t, int32(3), first.hits.Load())
}

func TestUploadSuccessFalseIsMalformed(t *testing.T) {
	srv := newServer(t, okHandler(`{"success":false,"error":"quota","metadataUri":"https://ipfs.io/ipfs/x"}`))
	c := NewClient([]Backend{{Name: "only", Endpoint: srv.URL}}, WithPolicy(fastPolicy()))

	_, err := c.Upload(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestUploadAttemptTimeout(t *testing.T) {
	slow := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	fast := newServer(t, okHandler(`{"metadataUri":"ipfs://`+testCID+`"}`))

	policy := fastPolicy()
	policy.MaxTries = 2
	policy.AttemptTimeout = 30 * time.Millisecond
	c := NewClient([]Backend{
		{Name: "slow", Endpoint: slow.URL},
		{Name: "fast", Endpoint: fast.URL},
	}, WithPolicy(policy))

	res, err := c.Upload(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Backend)
	assert.Equal(t, "https://ipfs.io/ipfs/"+testCID, res.MetadataURI)
	assert.Equal(t, int32(2), slow.hits.Load())
}

func TestUploadSendsMultipartForm(t *testing.T) {
	var (
		fields   map[string]string
		fileName string
		fileBody []byte
		header   string
	)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		fileName = fh.Filename
		fileBody, _ = io.ReadAll(f)
		header = r.Header.Get("X-Api-Key")
		okHandler(`{"metadataUri":"https://ipfs.io/ipfs/` + testCID + `"}`)(w, r, 0)
	})

	req := sampleRequest()
	req.Description = "TikTok token for: https://www.tiktok.com/@cat/video/123"
	req.Website = "https://example.com"
	c := NewClient([]Backend{{Name: "only", Endpoint: srv.URL, Headers: map[string]string{"X-Api-Key": "k1"}}}, WithPolicy(fastPolicy()))

	_, err := c.Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Dance Cat", fields["name"])
	assert.Equal(t, "DCAT", fields["symbol"])
	assert.Equal(t, req.Description, fields["description"])
	assert.Equal(t, "https://example.com", fields["website"])
	assert.Equal(t, "true", fields["showName"])
	assert.Equal(t, "cat.png", fileName)
	assert.Equal(t, req.Image, fileBody)
	assert.Equal(t, "k1", header)
}

func TestUploadImagePriorityAndNormalization(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "metadata image wins",
			body: `{"metadataUri":"https://cf-ipfs.com/ipfs/` + testCID + `","metadata":{"image":"/api/ipfs/asset/` + testCID + `"},"imageUrl":"https://x/y.png","image":"https://x/z.png"}`,
			want: "https://ipfs.io/ipfs/" + testCID,
		},
		{
			name: "imageUrl before image",
			body: `{"metadataUri":"https://ipfs.io/ipfs/` + testCID + `","imageUrl":"https://x/y.png","image":"https://x/z.png"}`,
			want: "https://x/y.png",
		},
		{
			name: "image last",
			body: `{"metadataUri":"https://ipfs.io/ipfs/` + testCID + `","image":"https://x/z.png"}`,
			want: "https://x/z.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, okHandler(tt.body))
			c := NewClient([]Backend{{Name: "only", Endpoint: srv.URL}}, WithPolicy(fastPolicy()))
			res, err := c.Upload(context.Background(), sampleRequest())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.ImageURL)
			assert.Equal(t, "https://ipfs.io/ipfs/"+testCID, res.MetadataURI)
		})
	}
}

func TestUploadRequiresImage(t *testing.T) {
	c := NewClient([]Backend{{Name: "only", Endpoint: "http://127.0.0.1:1"}})
	_, err := c.Upload(context.Background(), Request{Name: "x"})
	var ve types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "image", ve.Field)
}
