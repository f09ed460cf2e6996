package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"partsmatch/internal"
	"partsmatch/internal/catalog"
	"partsmatch/internal/config"
	"partsmatch/internal/connectors"
	"partsmatch/internal/matcher"
	"partsmatch/internal/pipeline"
	"partsmatch/internal/storage"
)

const bomMail = "Message-ID: <bom-1@example.com>\r\n" +
	"Subject: BOM for quote\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=XX\r\n\r\n" +
	"--XX\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"Please quote the attached BOM.\r\n" +
	"--XX\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=\"bom.csv\"\r\n\r\n" +
	"MPN,Qty\r\nLM358DR,4\r\nNE555DR,2\r\n" +
	"--XX--\r\n"

type staticConnector []internal.FetchedMailMessage

func (c staticConnector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	return c, nil
}

func TestRunCycleFetchesProcessesAndExports(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.Config{
		RawMailDir:               filepath.Join(tmp, "raw"),
		OutputDir:                filepath.Join(tmp, "out"),
		MailListenerProvider:     "imap",
		MailListenerLabel:        "INBOX",
		MailListenerFetchMax:     10,
		MailListenerProcessBatch: 10,
		MailListenerAutoExport:   true,
		DetectBOMThreshold:       pipeline.DefaultDetectThreshold,
	}

	msg, err := connectors.MessageFromRaw("imap", "imap-1", []byte(bomMail), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	engine, err := matcher.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	proc := pipeline.NewService(db, cfg, matcher.NewLocalMatcher(engine, catalog.BuildIndex(nil).SearchFunc(5)), nil)

	svc := NewService(db, cfg, proc, nil)
	svc.newConnector = func(context.Context, string) (connectors.MailConnector, error) {
		return staticConnector{msg}, nil
	}

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	email, err := db.GetEmailByProviderMessageID("imap", "<bom-1@example.com>")
	if err != nil || email == nil {
		t.Fatalf("email=%v err=%v", email, err)
	}
	if email.Status != pipeline.EmailExported {
		t.Fatalf("status=%q", email.Status)
	}

	files, err := filepath.Glob(filepath.Join(cfg.OutputDir, "listener", "*.xlsx"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("exports=%v", files)
	}
	if info, err := os.Stat(files[0]); err != nil || info.Size() == 0 {
		t.Fatalf("bad export %v: %v", files[0], err)
	}
}

func TestSanitizeMessageID(t *testing.T) {
	if got := sanitizeMessageID("<a/b@example.com>"); got != "a_b_at_example.com" {
		t.Fatalf("got %q", got)
	}
}
