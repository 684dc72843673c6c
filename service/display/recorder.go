package display

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/service/lgr"
)

// WARNING:
// GoCV writes uncompressed frames through the codec, which might generate
// large MP4 files for long sessions.
type recorderService struct {
	folder    string
	sessionID string
	fps       float64

	filename string
	writer   *gocv.VideoWriter
	cols     int
	rows     int
	frames   int
}

func NewRecorder(folder, sessionID string, fps float64) IService {
	return &recorderService{
		folder:    folder,
		sessionID: sessionID,
		fps:       fps,
	}
}

func (svc *recorderService) Show(_ string, frame gocv.Mat) error {
	defer frame.Close()

	if frame.Empty() {
		return xerrors.New("invalid empty frame")
	}

	if svc.writer == nil {
		if err := svc.open(frame.Cols(), frame.Rows()); err != nil {
			return err
		}
	}

	if frame.Cols() != svc.cols || frame.Rows() != svc.rows {
		return xerrors.Errorf("frame dimensions %dx%d do not match recording dimensions %dx%d",
			frame.Cols(), frame.Rows(), svc.cols, svc.rows)
	}

	if err := svc.writer.Write(frame); err != nil {
		return xerrors.Errorf("error writing frame to %s: %w", svc.filename, err)
	}
	svc.frames++
	return nil
}

func (svc *recorderService) open(cols, rows int) error {
	if err := os.MkdirAll(svc.folder, 0755); err != nil {
		return xerrors.Errorf("error creating recordings folder: %w", err)
	}

	svc.filename = fmt.Sprintf("%s/%s_composite_%d.mp4", svc.folder, svc.sessionID, time.Now().Unix())
	writer, err := gocv.VideoWriterFile(svc.filename, "avc1", svc.fps, cols, rows, true)
	if err != nil {
		return xerrors.Errorf("error creating video writer: %w", err)
	}

	svc.writer = writer
	svc.cols = cols
	svc.rows = rows

	lgr.Logger.Info(
		"recording started",
		slog.String("filename", svc.filename),
		slog.Int("cols", cols),
		slog.Int("rows", rows),
	)
	return nil
}

func (svc *recorderService) PollKey(_ int) (int, bool) {
	return 0, false
}

func (svc *recorderService) Close() error {
	if svc.writer == nil {
		return nil
	}

	lgr.Logger.Info(
		"recording finished",
		slog.String("filename", svc.filename),
		slog.Int("frames", svc.frames),
	)
	return svc.writer.Close()
}
