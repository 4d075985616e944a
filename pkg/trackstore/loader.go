package trackstore

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// codeLoader writes a fingerprint's codes inside the caller's transaction
// and reports the number of rows the database wrote.
type codeLoader interface {
	load(ctx context.Context, tx *gorm.DB, trackID uint, fp *Fingerprint) (int64, error)
}

func newCodeLoader(cfg *Config, dialect string) codeLoader {
	switch {
	case cfg.Strategy == StrategyBatch:
		return batchLoader{batchSize: cfg.BatchSize}
	case dialect == DriverMySQL:
		return infileLoader{tempDir: cfg.TempDir, log: cfg.Logger}
	default:
		return spoolLoader{tempDir: cfg.TempDir, batchSize: cfg.BatchSize, log: cfg.Logger}
	}
}

var ignoreDuplicates = clause.OnConflict{DoNothing: true}

// batchLoader issues multi-row inserts that skip existing (code, track_id)
// keys.
type batchLoader struct {
	batchSize int
}

func (l batchLoader) load(ctx context.Context, tx *gorm.DB, trackID uint, fp *Fingerprint) (int64, error) {
	rows := codeRows(trackID, fp)
	if len(rows) == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).Clauses(ignoreDuplicates).CreateInBatches(rows, l.batchSize)
	return res.RowsAffected, res.Error
}

// infileLoader bulk-loads a spooled code file with LOAD DATA LOCAL INFILE.
type infileLoader struct {
	tempDir string
	log     Logger
}

func (l infileLoader) load(ctx context.Context, tx *gorm.DB, trackID uint, fp *Fingerprint) (n int64, err error) {
	path, size, err := writeCodesFile(l.tempDir, trackID, fp)
	if err != nil {
		return 0, err
	}
	defer removeCodesFile(path, &err)
	l.log.Debugf("loading %s of codes from %s", humanize.Bytes(uint64(size)), path)

	mysqldriver.RegisterLocalFile(path)
	defer mysqldriver.DeregisterLocalFile(path)

	// Sent on the transaction's connection directly: the statement has no
	// placeholders and the path must not be rewritten.
	res, err := tx.Statement.ConnPool.ExecContext(ctx, loadDataStatement(path))
	if err != nil {
		return 0, fmt.Errorf("load data: %w", err)
	}
	return res.RowsAffected()
}

func loadDataStatement(path string) string {
	return "LOAD DATA LOCAL INFILE " + quoteLiteral(path) +
		` IGNORE INTO TABLE codes FIELDS TERMINATED BY '\t' LINES TERMINATED BY '\n' (code, time, track_id)`
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteLiteral(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

// spoolLoader is the file strategy for engines without a file-load
// statement: the spooled file is streamed back as duplicate-skipping
// batch inserts.
type spoolLoader struct {
	tempDir   string
	batchSize int
	log       Logger
}

func (l spoolLoader) load(ctx context.Context, tx *gorm.DB, trackID uint, fp *Fingerprint) (n int64, err error) {
	path, size, err := writeCodesFile(l.tempDir, trackID, fp)
	if err != nil {
		return 0, err
	}
	defer removeCodesFile(path, &err)
	l.log.Debugf("replaying %s of codes from %s", humanize.Bytes(uint64(size)), path)

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening code file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = '\t'
	r.FieldsPerRecord = 3
	r.ReuseRecord = true

	batch := make([]codeRow, 0, l.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res := tx.WithContext(ctx).Clauses(ignoreDuplicates).Create(&batch)
		if res.Error != nil {
			return res.Error
		}
		n += res.RowsAffected
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("reading code file: %w", err)
		}
		row, err := parseCodeRecord(rec)
		if err != nil {
			return n, err
		}
		batch = append(batch, row)
		if len(batch) == l.batchSize {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	if err := flush(); err != nil {
		return n, err
	}
	return n, nil
}

func parseCodeRecord(rec []string) (codeRow, error) {
	code, err := strconv.ParseUint(rec[0], 10, 32)
	if err != nil {
		return codeRow{}, fmt.Errorf("bad code %q: %w", rec[0], err)
	}
	t, err := strconv.ParseUint(rec[1], 10, 32)
	if err != nil {
		return codeRow{}, fmt.Errorf("bad time %q: %w", rec[1], err)
	}
	trackID, err := strconv.ParseUint(rec[2], 10, 64)
	if err != nil {
		return codeRow{}, fmt.Errorf("bad track id %q: %w", rec[2], err)
	}
	return codeRow{Code: uint32(code), Time: uint32(t), TrackID: uint(trackID)}, nil
}

// writeCodesFile writes one "code\ttime\ttrack_id" line per code to a new
// file named after the track. The file is removed again if writing fails.
func writeCodesFile(dir string, trackID uint, fp *Fingerprint) (path string, size int64, err error) {
	if dir == "" {
		dir = os.TempDir()
	}
	name := filepath.Join(dir, fmt.Sprintf("codes-%d-%s.tsv", trackID, uuid.NewString()))

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("creating code file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(name)
		}
	}()

	w := bufio.NewWriterSize(f, 64*1024)
	id := strconv.FormatUint(uint64(trackID), 10)
	line := make([]byte, 0, 32)
	for i, code := range fp.Codes {
		line = strconv.AppendUint(line[:0], uint64(code), 10)
		line = append(line, '\t')
		line = strconv.AppendUint(line, uint64(fp.Times[i]), 10)
		line = append(line, '\t')
		line = append(line, id...)
		line = append(line, '\n')
		if _, err = w.Write(line); err != nil {
			f.Close()
			return "", 0, fmt.Errorf("writing code file: %w", err)
		}
		size += int64(len(line))
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("flushing code file: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", 0, fmt.Errorf("closing code file: %w", err)
	}
	return name, size, nil
}

// removeCodesFile deletes a spooled file and joins any failure into *err.
func removeCodesFile(path string, err *error) {
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		*err = errors.Join(*err, fmt.Errorf("removing code file: %w", rmErr))
	}
}
