package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// reportEntryName is the archive entry holding the per-(project,table)
// outcome report alongside the exported files.
const reportEntryName = "export_report.json"

// archiveFileName names the produced archive after the export date.
func archiveFileName(now time.Time) string {
	return fmt.Sprintf("export_%s.zip", now.Format("2006-01-02"))
}

// buildArchive streams a ZIP of every success-outcome file in dir to w,
// plus the outcome report, and returns the number of entries written.
// Deflate runs at best compression. Zero successful files still produce a
// valid archive containing the report; deciding whether an all-failed
// export is an error is the caller's call.
func buildArchive(w io.Writer, dir string, outcomes []ExportOutcome) (int, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	added := 0
	for _, outcome := range outcomes {
		if outcome.Status != StatusSuccess || outcome.FileName == nil {
			continue
		}

		if err := addArchiveFile(zw, dir, *outcome.FileName); err != nil {
			return added, err
		}
		added++
	}

	report, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return added, fmt.Errorf("failed to encode export report: %w", err)
	}
	entry, err := zw.Create(reportEntryName)
	if err != nil {
		return added, fmt.Errorf("failed to create report entry: %w", err)
	}
	if _, err := entry.Write(report); err != nil {
		return added, fmt.Errorf("failed to write report entry: %w", err)
	}
	added++

	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return added, nil
}

func addArchiveFile(zw *zip.Writer, dir, name string) error {
	file, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to open export file %s: %w", name, err)
	}
	defer file.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}

	if _, err := io.Copy(entry, file); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}

	return nil
}

// uploadArchive ships a finished archive to the configured S3-compatible
// bucket. Upload failures are the caller's to log; the export response has
// already been served by the time this runs.
func uploadArchive(cfg *S3Config, path, key string, logger *slog.Logger) error {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 session: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive for upload: %w", err)
	}
	defer file.Close()

	uploader := s3manager.NewUploader(sess)
	_, err = uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(cfg.Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	logger.Info(fmt.Sprintf("☁️  Uploaded archive to s3://%s/%s", cfg.Bucket, key))
	return nil
}
