package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	stdcolor "image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// maxHealthLatency is the slowest acceptable /health round trip.
const maxHealthLatency = time.Second

type check struct {
	name string
	run  func(*client) (string, error)
}

type client struct {
	baseURL string
	http    *http.Client
}

type healthBody struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func (c *client) health() (*healthBody, int, error) {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var body healthBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "decoding /health")
	}
	return &body, resp.StatusCode, nil
}

func checkHealth(c *client) (string, error) {
	body, status, err := c.health()
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || body.Status != "healthy" {
		return "", errors.Errorf("status %d, %q", status, body.Status)
	}
	return "service is healthy", nil
}

func checkModelLoaded(c *client) (string, error) {
	body, _, err := c.health()
	if err != nil {
		return "", err
	}
	if !body.ModelLoaded {
		return "", errors.New("model is not loaded")
	}
	return "model is loaded", nil
}

func checkPredict(c *client) (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: stdcolor.Gray{Y: 128}}, image.Point{}, draw.Src)
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, nil); err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="smoke.jpg"`},
		"Content-Type":        {"image/jpeg"},
	})
	if err != nil {
		return "", err
	}
	if _, err := part.Write(jpg.Bytes()); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	resp, err := c.http.Post(c.baseURL+"/predict", w.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var pred map[string]json.RawMessage
	if err := json.Unmarshal(raw, &pred); err != nil {
		return "", errors.Wrap(err, "decoding /predict")
	}
	var missing []string
	for _, field := range []string{"predicted_class", "confidence", "probabilities"} {
		if _, ok := pred[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return "", errors.Errorf("response is missing %s", strings.Join(missing, ", "))
	}
	return "prediction endpoint working", nil
}

func checkLatency(c *client) (string, error) {
	start := time.Now()
	if _, _, err := c.health(); err != nil {
		return "", err
	}
	took := time.Since(start)
	if took >= maxHealthLatency {
		return "", errors.Errorf("slow response (%.3fs)", took.Seconds())
	}
	return fmt.Sprintf("response time OK (%.3fs)", took.Seconds()), nil
}

var checks = []check{
	{name: "Health Check", run: checkHealth},
	{name: "Model Loaded", run: checkModelLoaded},
	{name: "Prediction Endpoint", run: checkPredict},
	{name: "Response Time", run: checkLatency},
}

// runChecks runs every check against c, writes a report to out and returns the number
// of failures.
func runChecks(c *client, out io.Writer) int {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()

	fmt.Fprintf(out, "Running smoke tests against %s\n", c.baseURL)
	failed := 0
	for _, ch := range checks {
		msg, err := ch.run(c)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", fail("FAIL"), ch.name, err)
			continue
		}
		fmt.Fprintf(out, "%s %s: %s\n", pass("PASS"), ch.name, msg)
	}
	fmt.Fprintf(out, "Results: %d/%d checks passed\n", len(checks)-failed, len(checks))
	return failed
}

func main() {
	var (
		baseURL string
		timeout time.Duration
	)
	flag.StringVar(&baseURL, "url", "http://localhost:8000", "Base URL of the deployed service")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Per request timeout")
	flag.Parse()

	c := &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	if runChecks(c, color.Output) > 0 {
		os.Exit(1)
	}
}
