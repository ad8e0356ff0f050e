package log

import (
	"encoding/json"

	"pyre.dev/internal/sim/engine"
)

const JournalPrefix = "journal"

// Journal writes engine entries as compressed JSONL under dir.
type Journal struct{ w *JSONLZstdWriter }

func NewJournal(dir string) *Journal {
	return &Journal{w: NewJSONLZstdWriter(dir, JournalPrefix)}
}

func (j *Journal) WriteEntry(e engine.Entry) error { return j.w.Write(e) }

// Entries counts the entries written by this process.
func (j *Journal) Entries() uint64 { return j.w.Lines() }

func (j *Journal) Close() error { return j.w.Close() }

// ReadJournal decodes every journal file under dir in rotation order and
// calls fn for each entry.
func ReadJournal(dir string, fn func(engine.Entry) error) error {
	paths, err := Files(dir, JournalPrefix)
	if err != nil {
		return err
	}
	for _, p := range paths {
		err := ReadJSONL(p, func(line []byte) error {
			var e engine.Entry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
