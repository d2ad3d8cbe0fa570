package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

// MaxPages bounds pagination of a single search.
const MaxPages = 50

func (c *Client) post(ctx context.Context, url string, body []byte) (*Response, error) {
	log.Debugf("Making STAC request %q", string(body))
	r, err := retryablehttp.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/geo+json")
	return c.do(r.WithContext(ctx))
}

func (c *Client) get(ctx context.Context, url string) (*Response, error) {
	r, err := retryablehttp.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", "application/geo+json")
	return c.do(r.WithContext(ctx))
}

func (c *Client) do(r *retryablehttp.Request) (*Response, error) {
	res, err := c.HTTP.Do(r)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		buf := new(strings.Builder)
		io.Copy(buf, io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("stac server %v: %q", res.Status, buf.String())
	}
	resp := &Response{}
	if err := json.NewDecoder(res.Body).Decode(resp); err != nil {
		return nil, fmt.Errorf("decode stac response: %v", err)
	}
	return resp, nil
}

// Search queries the /search endpoint and follows next links.
func (c *Client) Search(ctx context.Context, req *SearchRequest) ([]*Scene, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/search"
	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	scenes := resp.Features
	for page := 1; page < MaxPages; page++ {
		next := resp.next()
		if next == nil {
			break
		}
		if strings.EqualFold(next.Method, "POST") {
			nb, err := nextBody(body, next)
			if err != nil {
				return nil, err
			}
			resp, err = c.post(ctx, next.Href, nb)
		} else {
			resp, err = c.get(ctx, next.Href)
		}
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, resp.Features...)
	}
	log.Debugf("STAC search returned %d scenes", len(scenes))
	return scenes, nil
}

// nextBody builds the body of a POST next link. When the link asks for a merge its
// body is laid over the original request.
func nextBody(orig []byte, l *Link) ([]byte, error) {
	if len(l.Body) == 0 {
		return orig, nil
	}
	if !l.Merge {
		return l.Body, nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(orig, &m); err != nil {
		return nil, err
	}
	over := map[string]interface{}{}
	if err := json.Unmarshal(l.Body, &over); err != nil {
		return nil, fmt.Errorf("bad next link body: %v", err)
	}
	for k, v := range over {
		m[k] = v
	}
	return json.Marshal(m)
}
