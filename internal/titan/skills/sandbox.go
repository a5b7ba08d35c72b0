package skills

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Sandbox runs a single EXEC-scoped skill invocation inside a throwaway
// Docker container rather than the host process — an optional hardening
// layer for skills whose manifest declares EXEC. Grounded on the
// teacher's runtime/docker.Adapter create/start/inspect/remove sequence,
// narrowed from a long-lived agent container to a one-shot run-and-reap.
type Sandbox struct {
	client *dockerclient.Client
	Image  string
}

// NewSandbox connects to the local Docker engine using the same
// FromEnv/API-negotiation options the teacher's adapter uses.
func NewSandbox(image string) (*Sandbox, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("skills: docker client: %w", err)
	}
	return &Sandbox{client: cli, Image: image}, nil
}

// RunOnce creates a container running argv, waits for it to exit (or
// ctx's deadline, whichever comes first), and returns its combined
// stdout+stderr before removing it — there is no persistent container
// state between skill invocations.
func (s *Sandbox) RunOnce(ctx context.Context, argv []string) (string, error) {
	resp, err := s.client.ContainerCreate(ctx, &container.Config{
		Image:      s.Image,
		Cmd:        argv,
		AttachStdout: true,
		AttachStderr: true,
	}, &container.HostConfig{
		NetworkMode: "none",
		AutoRemove:  false,
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("skills: sandbox create container: %w", err)
	}
	defer func() {
		_ = s.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := s.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("skills: sandbox start container: %w", err)
	}

	waitCh, errCh := s.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("skills: sandbox wait: %w", err)
		}
	case status := <-waitCh:
		if status.StatusCode != 0 {
			return "", fmt.Errorf("skills: sandbox exited with status %d", status.StatusCode)
		}
	case <-ctx.Done():
		return "", fmt.Errorf("skills: sandbox timed out: %w", ctx.Err())
	}

	return s.readLogs(ctx, resp.ID)
}

func (s *Sandbox) readLogs(ctx context.Context, containerID string) (string, error) {
	logsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := s.client.ContainerLogs(logsCtx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("skills: sandbox read logs: %w", err)
	}
	defer out.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, out); err != nil && err != io.EOF {
		return "", fmt.Errorf("skills: sandbox demux logs: %w", err)
	}
	combined := stdout.String() + stderr.String()
	return combined, nil
}
