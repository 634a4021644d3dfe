package raster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// ErrAssetNotFound is returned when an asset reference resolves to nothing
var ErrAssetNotFound = errors.New("asset not found")

const azureBlobHostSuffix = ".blob.core.windows.net"

// Fetcher opens the raw bytes behind an asset reference. The caller must
// close the returned reader.
type Fetcher interface {
	Fetch(ctx context.Context, href string) (io.ReadCloser, error)
}

// SourceFetcher resolves local paths, file:// and http(s):// URLs, and
// Azure Blob Storage URLs. Blob URLs are expected to carry their SAS token
// in the query string.
type SourceFetcher struct {
	HTTPClient *http.Client
}

// NewSourceFetcher creates a fetcher using client for plain HTTP downloads
func NewSourceFetcher(client *http.Client) *SourceFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &SourceFetcher{HTTPClient: client}
}

// Fetch opens href
func (f *SourceFetcher) Fetch(ctx context.Context, href string) (io.ReadCloser, error) {
	u, err := url.Parse(href)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare paths, including Windows drive letters
		return openFile(href)
	}

	switch u.Scheme {
	case "file":
		return openFile(u.Path)
	case "http", "https":
		if strings.HasSuffix(u.Hostname(), azureBlobHostSuffix) {
			return fetchBlob(ctx, href)
		}
		return f.fetchHTTP(ctx, href)
	}
	return nil, fmt.Errorf("unsupported asset scheme %q in %s", u.Scheme, href)
}

func openFile(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrAssetNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return fh, nil
}

func (f *SourceFetcher) fetchHTTP(ctx context.Context, href string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", href, err)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", href, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", href, ErrAssetNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %s", href, resp.Status)
	}
	return resp.Body, nil
}

func fetchBlob(ctx context.Context, href string) (io.ReadCloser, error) {
	client, err := blob.NewClientWithNoCredential(href, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	resp, err := client.DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%s: %w", stripQuery(href), ErrAssetNotFound)
		}
		return nil, fmt.Errorf("download blob %s: %w", stripQuery(href), err)
	}
	return resp.Body, nil
}

// stripQuery drops SAS tokens before a URL is logged or wrapped into an error
func stripQuery(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		return href[:i]
	}
	return href
}
