package client

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Directory lists the chat and video servers of a platform.
type Directory struct {
	ChatServers      []string          `yaml:"chat_servers" json:"chat_servers"`
	WebsocketServers map[string]string `yaml:"websocket_servers" json:"websocket_servers"`
	NgVideoServers   map[string]string `yaml:"ngvideo_servers" json:"ngvideo_servers"`
	WzobsServers     map[string]string `yaml:"wzobs_servers" json:"wzobs_servers"`
}

//go:embed serverconfig.yaml
var bundledDirectory []byte

// BundledDirectory returns the server list shipped with the package.
func BundledDirectory() (*Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(bundledDirectory, &d); err != nil {
		return nil, fmt.Errorf("parse bundled server config: %w", err)
	}
	return &d, nil
}

// FetchDirectory downloads the live server list from url.
func FetchDirectory(ctx context.Context, hc *http.Client, url string) (*Directory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch server config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch server config: %s", resp.Status)
	}

	var d Directory
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	return &d, nil
}

// RandomChatServer picks one of the binary chat servers.
func (d *Directory) RandomChatServer() (string, bool) {
	if len(d.ChatServers) == 0 {
		return "", false
	}
	return d.ChatServers[rand.IntN(len(d.ChatServers))], true
}

// RandomWebsocketServer picks one of the websocket chat servers.
func (d *Directory) RandomWebsocketServer() (string, bool) {
	if len(d.WebsocketServers) == 0 {
		return "", false
	}
	names := make([]string, 0, len(d.WebsocketServers))
	for name := range d.WebsocketServers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names[rand.IntN(len(names))], true
}

// The directory is loaded once per process and source.
var (
	directoryGroup singleflight.Group
	directoryMu    sync.Mutex
	directories    = make(map[string]*Directory)
)

const bundledKey = "bundled"

func loadDirectory(ctx context.Context, hc *http.Client, url string, cached bool) (*Directory, error) {
	key := url
	if cached {
		key = bundledKey
	}

	directoryMu.Lock()
	d, ok := directories[key]
	directoryMu.Unlock()
	if ok {
		return d, nil
	}

	v, err, _ := directoryGroup.Do(key, func() (any, error) {
		var (
			d   *Directory
			err error
		)
		if cached {
			d, err = BundledDirectory()
		} else {
			d, err = FetchDirectory(ctx, hc, url)
		}
		if err != nil {
			return nil, err
		}
		directoryMu.Lock()
		directories[key] = d
		directoryMu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Directory), nil
}

func (c *Client) directory(ctx context.Context) (*Directory, error) {
	return loadDirectory(ctx, c.opts.HTTPClient, c.opts.WebBaseURL+"/_js/serverconfig.js", c.opts.UseCachedServerConfig)
}
