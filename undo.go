package timewarrior

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// RecordKind identifies what an undo Record reverses. ConfigAction is
// reserved for a future configuration-mutation facility and is not
// currently produced by anything in this package.
type RecordKind string

const (
	IntervalAction RecordKind = "interval"
	ConfigAction   RecordKind = "config"
)

// Record is the triple (kind, before, after) describing one reversible
// action. An empty Before means the action introduced something from
// nothing (an add); an empty After means it removed something (a delete).
type Record struct {
	Kind   RecordKind
	Before string
	After  string
}

// Transaction is a contiguous group of Records applied or reverted as one
// unit.
type Transaction struct {
	Records []Record
}

type journalState int

const (
	journalClosed journalState = iota
	journalOpen
)

const (
	txnBeginSentinel = "TXN_BEGIN"
	txnEndPrefix     = "TXN_END "
	recPrefix        = "REC "
)

// UndoJournal is the write-ahead log of reversible Store mutations,
// grouped into transactions (§4.4). maxTransactions of 0 means unbounded
// retention; a negative value disables persistence entirely, in which
// case every method is a no-op and undo() always reports nothing to
// undo.
type UndoJournal struct {
	path            string
	maxTransactions int
	writer          *AtomicWriter
	logger          *slog.Logger
	disabled        bool

	state        journalState
	transactions []Transaction // completed, oldest first
	current      Transaction   // accumulating while state == journalOpen
}

// openUndoJournal loads path if persistence is enabled, tolerating a
// missing file (fresh store) and a truncated trailing transaction
// (crash mid-write). A transaction whose checksum trailer doesn't match
// its body, or any other unparseable content, is treated as corruption:
// the file is quarantined and the whole log is dropped.
func openUndoJournal(path string, maxTransactions int, writer *AtomicWriter, logger *slog.Logger) (*UndoJournal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &UndoJournal{path: path, maxTransactions: maxTransactions, writer: writer, logger: logger}
	if maxTransactions < 0 {
		j.disabled = true
		return j, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, &IOError{Path: path, Cause: err}
	}

	if err := j.parse(data); err != nil {
		logger.Warn("timewarrior: undo journal corrupt, quarantining and starting fresh", "path", path, "err", err)
		if qerr := writer.Quarantine(path); qerr != nil {
			logger.Warn("timewarrior: failed to quarantine corrupt undo journal", "path", path, "err", qerr)
		}
		j.transactions = nil
	}
	j.prune()
	return j, nil
}

func (j *UndoJournal) parse(data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var transactions []Transaction
	var pending *Transaction
	var lines []string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == txnBeginSentinel:
			pending = &Transaction{}
			lines = nil
		case strings.HasPrefix(line, recPrefix):
			if pending == nil {
				return &InvalidFileError{Path: j.path, Reason: fmt.Errorf("record line outside any transaction")}
			}
			rec, err := decodeRecordLine(line)
			if err != nil {
				return &InvalidFileError{Path: j.path, Reason: err}
			}
			pending.Records = append(pending.Records, rec)
			lines = append(lines, line)
		case strings.HasPrefix(line, txnEndPrefix):
			if pending == nil {
				return &InvalidFileError{Path: j.path, Reason: fmt.Errorf("end sentinel outside any transaction")}
			}
			want := strings.TrimPrefix(line, txnEndPrefix)
			got := fmt.Sprintf("%x", checksumLines(lines))
			if want != got {
				return &InvalidFileError{Path: j.path, Reason: fmt.Errorf("transaction checksum mismatch: got %s want %s", got, want)}
			}
			transactions = append(transactions, *pending)
			pending = nil
			lines = nil
		case line == "":
			// tolerate blank separator lines
		default:
			return &InvalidFileError{Path: j.path, Reason: fmt.Errorf("unrecognized journal line: %q", line)}
		}
	}
	if err := scanner.Err(); err != nil {
		return &InvalidFileError{Path: j.path, Reason: err}
	}
	// A pending transaction with no terminating TXN_END is a crash mid
	// write; it is dropped, not an error.
	j.transactions = transactions
	return nil
}

// startTransaction opens an explicit transaction. Nesting is flat: calling
// it while already Open is an invariant violation.
func (j *UndoJournal) startTransaction() error {
	if j.disabled {
		return nil
	}
	if j.state == journalOpen {
		return &InvariantViolationError{Description: "startTransaction called while a transaction is already open"}
	}
	j.state = journalOpen
	j.current = Transaction{}
	return nil
}

// endTransaction closes the currently open transaction, persisting it iff
// it accumulated at least one record.
func (j *UndoJournal) endTransaction() error {
	if j.disabled {
		return nil
	}
	if j.state == journalClosed {
		return &InvariantViolationError{Description: "endTransaction called with no open transaction"}
	}
	txn := j.current
	j.current = Transaction{}
	j.state = journalClosed
	if len(txn.Records) == 0 {
		return nil
	}
	j.transactions = append(j.transactions, txn)
	j.prune()
	return j.persist()
}

// recordIntervalAction appends a Record for an interval add/delete. If no
// transaction is open, it is wrapped in an implicit single-record one.
func (j *UndoJournal) recordIntervalAction(before, after string) error {
	if j.disabled {
		return nil
	}
	rec := Record{Kind: IntervalAction, Before: before, After: after}
	if j.state == journalOpen {
		j.current.Records = append(j.current.Records, rec)
		return j.persist()
	}
	j.transactions = append(j.transactions, Transaction{Records: []Record{rec}})
	j.prune()
	return j.persist()
}

// undo pops the newest transaction and returns its records in reverse
// application order; the caller reapplies each with before/after swapped.
// It is only valid when Closed.
func (j *UndoJournal) undo() ([]Record, error) {
	if j.disabled {
		return nil, nil
	}
	if j.state == journalOpen {
		return nil, &InvariantViolationError{Description: "undo called while a transaction is open"}
	}
	if len(j.transactions) == 0 {
		return nil, nil
	}
	last := j.transactions[len(j.transactions)-1]
	j.transactions = j.transactions[:len(j.transactions)-1]

	reversed := make([]Record, len(last.Records))
	for i, rec := range last.Records {
		reversed[len(last.Records)-1-i] = rec
	}
	if err := j.persist(); err != nil {
		return nil, err
	}
	return reversed, nil
}

func (j *UndoJournal) prune() {
	if j.maxTransactions <= 0 {
		return
	}
	if len(j.transactions) > j.maxTransactions {
		drop := len(j.transactions) - j.maxTransactions
		j.transactions = j.transactions[drop:]
	}
}

func (j *UndoJournal) persist() error {
	var buf bytes.Buffer
	for _, txn := range j.transactions {
		writeTransaction(&buf, txn)
	}
	if j.state == journalOpen && len(j.current.Records) > 0 {
		buf.WriteString(txnBeginSentinel)
		buf.WriteByte('\n')
		for _, rec := range j.current.Records {
			buf.WriteString(encodeRecordLine(rec))
			buf.WriteByte('\n')
		}
	}
	if err := j.writer.WriteFile(j.path, buf.Bytes()); err != nil {
		return &JournalFullError{Cause: err}
	}
	return nil
}

func writeTransaction(buf *bytes.Buffer, txn Transaction) {
	buf.WriteString(txnBeginSentinel)
	buf.WriteByte('\n')
	lines := make([]string, len(txn.Records))
	for i, rec := range txn.Records {
		lines[i] = encodeRecordLine(rec)
		buf.WriteString(lines[i])
		buf.WriteByte('\n')
	}
	fmt.Fprintf(buf, "%s%x\n", txnEndPrefix, checksumLines(lines))
}

func encodeRecordLine(rec Record) string {
	return recPrefix + string(rec.Kind) + " " +
		base64.RawURLEncoding.EncodeToString([]byte(rec.Before)) + " " +
		base64.RawURLEncoding.EncodeToString([]byte(rec.After))
}

func decodeRecordLine(line string) (Record, error) {
	fields := strings.SplitN(strings.TrimPrefix(line, recPrefix), " ", 3)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("malformed record line: %q", line)
	}
	before, err := base64.RawURLEncoding.DecodeString(fields[1])
	if err != nil {
		return Record{}, fmt.Errorf("malformed record before-payload: %w", err)
	}
	after, err := base64.RawURLEncoding.DecodeString(fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("malformed record after-payload: %w", err)
	}
	return Record{Kind: RecordKind(fields[0]), Before: string(before), After: string(after)}, nil
}

func checksumLines(lines []string) uint64 {
	return xxhash.Sum64String(strings.Join(lines, "\n"))
}

// transactionCount reports the number of complete, persisted transactions
// currently retained. Exposed for diagnostics and tests.
func (j *UndoJournal) transactionCount() int { return len(j.transactions) }
