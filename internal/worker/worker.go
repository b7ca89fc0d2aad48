package worker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/facesift/internal/types"
	"github.com/andresmejia3/facesift/internal/utils" // Using the SafeCommand wrapper
)

// Response status bytes written by python/worker.py
const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxFaces guards against a corrupt header making us allocate gigabytes.
const maxFaces = 4096

// maxResponse is the largest payload a well-behaved worker can send:
// status, face count and maxFaces boxes with their encodings.
const maxResponse = 1 + 4 + maxFaces*(4*4+types.EncodingDim*4)

// Config controls how the Python face_recognition worker is launched.
type Config struct {
	Script      string        // path to worker.py
	Python      string        // interpreter, defaults to python3
	ReadTimeout time.Duration // per-image response deadline, 0 disables it
}

// RemoteError is an exception raised inside Python for a single request.
// The worker keeps running after it.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "python worker error: " + e.Msg }

type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

func NewPythonWorker(id int, cfg Config) (*PythonWorker, error) {
	if _, err := os.Stat(cfg.Script); err != nil {
		return nil, fmt.Errorf("worker script %s: %w", cfg.Script, err)
	}
	python := cfg.Python
	if python == "" {
		python = "python3"
	}

	py := utils.NewSafeCommand(python, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(w.ReadTimeout)); err != nil {
			return nil, err
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("worker response of %d bytes exceeds %d byte limit", respLen, maxResponse)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends an encoded image to Python and decodes the detected faces.
// Response: [Status] then either [NumFaces] ([Box][Vec])* or [MsgLen][Msg].
func (w *PythonWorker) ProcessFrame(img []byte) ([]types.Face, error) {
	resp, err := w.Communicate(img)
	if err != nil {
		return nil, err
	}
	return decodeFaces(resp)
}

func decodeFaces(resp []byte) ([]types.Face, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response: %w", err)
	}

	switch status {
	case statusOK:
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		return nil, &RemoteError{Msg: string(msg)}
	default:
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("failed to read face count: %w", err)
	}
	if n > maxFaces {
		return nil, fmt.Errorf("worker reported %d faces, refusing", n)
	}

	faces := make([]types.Face, 0, n)
	for i := uint32(0); i < n; i++ {
		var loc [4]int32 // top, right, bottom, left
		if err := binary.Read(r, binary.BigEndian, &loc); err != nil {
			return nil, fmt.Errorf("face %d box: %w", i, err)
		}
		var vec [types.EncodingDim]float32
		if err := binary.Read(r, binary.BigEndian, &vec); err != nil {
			return nil, fmt.Errorf("face %d encoding: %w", i, err)
		}

		enc := make(types.Encoding, types.EncodingDim)
		for j, v := range vec {
			enc[j] = float64(v)
		}
		faces = append(faces, types.Face{
			Box: types.Box{
				Top:    int(loc[0]),
				Right:  int(loc[1]),
				Bottom: int(loc[2]),
				Left:   int(loc[3]),
			},
			Encoding: enc,
		})
	}
	return faces, nil
}

func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
