package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(_ context.Context) error {
	return f.err
}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive()(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestHealthReadyOK(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(fakePinger{}, fakePinger{}, nil)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestHealthReadyFailsWhenDatabaseDown(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(fakePinger{err: errors.New("dial refused")}, fakePinger{}, nil)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestHealthReadyFailsWhenRedisDown(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(fakePinger{}, fakePinger{err: errors.New("dial refused")}, nil)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
