package server

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	gferrors "github.com/vnykmshr/poolserve/pkg/common/errors"
)

// indexRequest is the only request line answered with the index page.
var indexRequest = []byte("GET / HTTP/1.1\r\n")

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"
	statusInternal = "HTTP/1.1 500 INTERNAL SERVER ERROR"
)

// handleConnection runs on a pool worker. It reads one request, writes one
// response and closes the connection.
func (s *Server) handleConnection(conn net.Conn, logger *slog.Logger, listenerName string) {
	defer conn.Close()

	request, err := s.readRequest(conn)
	if err != nil {
		logger.Warn("read request failed", slog.Any("error", err))
		return
	}

	status, body, err := s.route(request)
	if err != nil {
		logger.Error("load page failed", slog.Any("error", err))
	}

	if s.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			logger.Warn("set write deadline failed", slog.Any("error", err))
			return
		}
	}
	if err := writeResponse(conn, status, body); err != nil {
		logger.Warn("write response failed", slog.Any("error", err))
		return
	}

	code := statusCode(status)
	if s.metrics != nil {
		s.metrics.Responses.WithLabelValues(listenerName, code).Inc()
	}
	logger.Debug("response written", slog.String("code", code), slog.Int("bytes", len(body)))
}

// readRequest reads at most ReadBufferSize bytes in a single read.
func (s *Server) readRequest(conn net.Conn) ([]byte, error) {
	if s.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return nil, gferrors.NewOperationError("server", "SetReadDeadline", err)
		}
	}

	buf := make([]byte, s.config.ReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil && !(err == io.EOF && n > 0) {
		return nil, gferrors.NewOperationError("server", "Read", err)
	}
	return buf[:n], nil
}

// route picks the status line and page for request. On a file error it
// returns a 500 status with an empty body along with the error.
func (s *Server) route(request []byte) (string, []byte, error) {
	status, name := statusNotFound, s.config.NotFoundFile
	if bytes.HasPrefix(request, indexRequest) {
		status, name = statusOK, s.config.IndexFile
	}

	body, err := os.ReadFile(filepath.Join(s.config.Root, name))
	if err != nil {
		return statusInternal, nil, gferrors.NewOperationError("server", "ReadFile", err).WithContext(name)
	}
	return status, body, nil
}

func writeResponse(w io.Writer, status string, body []byte) error {
	header := fmt.Sprintf("%s\r\nContent-Length: %d\r\n\r\n", status, len(body))
	if _, err := io.WriteString(w, header); err != nil {
		return gferrors.NewOperationError("server", "Write", err)
	}
	if _, err := w.Write(body); err != nil {
		return gferrors.NewOperationError("server", "Write", err)
	}
	return nil
}

// statusCode extracts "200" from "HTTP/1.1 200 OK".
func statusCode(status string) string {
	const prefix = len("HTTP/1.1 ")
	if len(status) < prefix+3 {
		return "unknown"
	}
	code := status[prefix : prefix+3]
	if _, err := strconv.Atoi(code); err != nil {
		return "unknown"
	}
	return code
}
