// Copyright 2024 The Keycard Shell Tools authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fetch reads input files from local paths or URLs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/machinebox/progress"
	"k8s.io/klog/v2"
)

// Timeout bounds each HTTP request.
var Timeout = 2 * time.Minute

var getByScheme = map[string]func(context.Context, *url.URL) ([]byte, error){
	"http":  readHTTP,
	"https": readHTTP,
	"file": func(_ context.Context, u *url.URL) ([]byte, error) {
		return os.ReadFile(u.Path)
	},
}

// Fetch returns the contents of location, which is either a path or an
// http, https or file URL.
func Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Not a URL, or a Windows drive letter.
		return os.ReadFile(location)
	}
	get := getByScheme[u.Scheme]
	if get == nil {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	return get(ctx, u)
}

func readHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http.Client.Do(): %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			klog.Errorf("resp.Body.Close(): %v", err)
		}
	}()
	switch resp.StatusCode {
	case http.StatusNotFound:
		klog.Infof("Not found: %q", u.String())
		return nil, os.ErrNotExist
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("unexpected http status %q", resp.Status)
	}

	pr := progress.NewReader(resp.Body)
	if resp.ContentLength > 0 {
		go func() {
			for p := range progress.NewTicker(ctx, pr, resp.ContentLength, time.Second) {
				klog.V(1).Infof("Downloading %q: %d%%, %v remaining...", u.String(), int(p.Percent()), p.Remaining().Round(time.Second))
			}
		}()
	}
	b, err := io.ReadAll(pr)
	if err != nil {
		return nil, fmt.Errorf("read %q: %v", u.String(), err)
	}
	klog.V(1).Infof("Downloaded %q: %d bytes", u.String(), len(b))
	return b, nil
}
