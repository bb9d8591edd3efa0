package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// apiClient is a thin HTTP client for the Inkwell API.
type apiClient struct {
	baseURL string
	ownerID string
	http    *http.Client
}

func newClient() *apiClient {
	return &apiClient{
		baseURL: serverURL,
		ownerID: ownerID,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// jobView mirrors the API job DTO.
type jobView struct {
	ID              string          `json:"id"`
	Title           *string         `json:"title"`
	InputType       string          `json:"inputType"`
	Status          string          `json:"status"`
	Progress        int             `json:"progress"`
	ProgressMessage string          `json:"progressMessage"`
	Settings        json.RawMessage `json:"settings"`
	InputText       *string         `json:"inputText"`
	EnhancedText    *string         `json:"enhancedText"`
}

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (c *apiClient) do(method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Owner-ID", c.ownerID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *apiClient) doJSON(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	return c.do(method, path, body, "application/json", out)
}

func (c *apiClient) submitText(title, text string, settings map[string]interface{}) (*jobView, error) {
	var job jobView
	err := c.doJSON(http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"title":    title,
		"text":     text,
		"settings": settings,
	}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) submitFiles(title string, paths []string, settings map[string]interface{}) (*jobView, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if title != "" {
		mw.WriteField("title", title)
	}
	if settings != nil {
		raw, err := json.Marshal(settings)
		if err != nil {
			return nil, err
		}
		mw.WriteField("settings", string(raw))
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		fw, err := mw.CreateFormFile("files", filepath.Base(path))
		if err != nil {
			return nil, err
		}
		fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var job jobView
	if err := c.do(http.MethodPost, "/api/v1/jobs/upload", &buf, mw.FormDataContentType(), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) getJob(jobID string) (*jobView, error) {
	var job jobView
	if err := c.do(http.MethodGet, "/api/v1/jobs/"+jobID, nil, "", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) getResult(jobID string) (*jobView, error) {
	var job jobView
	if err := c.do(http.MethodGet, "/api/v1/jobs/"+jobID+"/result", nil, "", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) cancel(jobID string) error {
	return c.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", nil, "", nil)
}

func (c *apiClient) downloadExport(jobID, format, outPath string) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/v1/jobs/"+jobID+"/exports/"+format, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Owner-ID", c.ownerID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func (c *apiClient) regenerateExport(jobID, format string, force bool) error {
	path := "/api/v1/jobs/" + jobID + "/exports/" + format
	if force {
		path += "?force=true"
	}
	return c.do(http.MethodPost, path, nil, "", nil)
}
