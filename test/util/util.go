// Package util provides helpers shared by the end-to-end tests: a disposable
// Mosquitto broker, an embedded NATS server and a Prometheus scrape poller.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats-server/v2/server"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	MosquittoReadyTimeout = 5 * time.Second
	NATSReadyTimeout      = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	pollInterval = 50 * time.Millisecond
)

// DockerAvailable reports whether container based tests may run.
func DockerAvailable() bool {
	v := os.Getenv("DOCKER_AVAILABLE")
	return v == "true" || v == "1"
}

// WaitForMetric polls metricsURL until its body contains substr.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			body, rerr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if rerr == nil && strings.Contains(string(body), substr) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("metric %q not found: %w", substr, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// StartNATS starts an embedded NATS server on a random local port.
func StartNATS() (string, func(), error) {
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		return "", nil, err
	}
	go srv.Start()
	if !srv.ReadyForConnections(NATSReadyTimeout) {
		srv.Shutdown()
		return "", nil, fmt.Errorf("nats server not ready")
	}
	return srv.ClientURL(), srv.Shutdown, nil
}

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`

// StartMosquitto runs an eclipse-mosquitto container accepting anonymous
// clients. The broker URL is returned once a client can connect.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				Reader:            strings.NewReader(mosquittoConf),
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start mosquitto: %w", err)
	}
	stop := func() { _ = cont.Terminate(context.Background()) }

	endpoint, err := cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		stop()
		return "", nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := probeBroker(readyCtx, endpoint); err != nil {
		stop()
		return "", nil, err
	}
	return endpoint, stop, nil
}

func probeBroker(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("haulboard-probe").
		SetConnectTimeout(time.Second)
	for {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		if token.WaitTimeout(time.Second) && token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mosquitto not ready: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
