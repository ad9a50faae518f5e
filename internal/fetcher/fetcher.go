// Package fetcher retrieves package bytes over HTTP. The mock subsystem
// never fetches anything; this is the collaborator the real install path
// uses.
package fetcher

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Job is one archive to download.
type Job struct {
	URL      string
	DestPath string
}

// Result pairs a job with its outcome.
type Result struct {
	Job   Job
	Error error
}

// Fetcher downloads archives, in parallel for batches, caching them under a
// directory so repeated installs skip the network.
type Fetcher struct {
	workers  int
	cacheDir string
	client   *http.Client
}

// New creates a fetcher with the given worker count and cache directory.
func New(workers int, cacheDir string) *Fetcher {
	return &Fetcher{
		workers:  workers,
		cacheDir: cacheDir,
		client:   &http.Client{},
	}
}

// FetchBytes downloads a URL into memory, sending the given request
// headers. Non-2xx responses are errors.
func (f *Fetcher) FetchBytes(url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return data, nil
}

// FetchString is FetchBytes decoded as text.
func (f *Fetcher) FetchString(url string, headers map[string]string) (string, error) {
	data, err := f.FetchBytes(url, headers)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Fetch downloads multiple archives in parallel.
func (f *Fetcher) Fetch(jobs []Job) []Result {
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		results := make([]Result, len(jobs))
		for i, job := range jobs {
			results[i] = Result{Job: job, Error: err}
		}
		return results
	}

	jobChan := make(chan Job, len(jobs))
	resultChan := make(chan Result, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				err := f.fetchOne(job)
				resultChan <- Result{Job: job, Error: err}
			}
		}()
	}

	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]Result, 0, len(jobs))
	for result := range resultChan {
		results = append(results, result)
	}

	return results
}

func (f *Fetcher) fetchOne(job Job) error {
	// Already cached?
	if _, err := os.Stat(job.DestPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	data, err := f.FetchBytes(job.URL, nil)
	if err != nil {
		return err
	}

	// Write to a temp file first, then rename, so a partial download never
	// passes for a cached archive.
	tmpPath := job.DestPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmpPath, job.DestPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}

	return nil
}

// CacheDir returns the cache directory.
func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// CachePath returns where a given archive file name is cached.
func (f *Fetcher) CachePath(name string) string {
	return filepath.Join(f.cacheDir, name)
}
