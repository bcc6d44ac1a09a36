package server

import (
	"sync"

	"typelens/internal/lens"
)

// Documents holds the latest snapshot of every open document.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]*lens.Document
}

// NewDocuments creates an empty store.
func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]*lens.Document)}
}

// Document returns the snapshot of uri.
func (d *Documents) Document(uri string) (*lens.Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[uri]
	return doc, ok
}

// Open records a freshly opened document.
func (d *Documents) Open(uri, languageID string, version int, text string) *lens.Document {
	doc := lens.NewDocument(uri, languageID, version, text)
	d.mu.Lock()
	d.docs[uri] = doc
	d.mu.Unlock()
	return doc
}

// Change applies content changes in order. Changes without a range replace
// the whole text. Changes to unknown documents are dropped.
func (d *Documents) Change(uri string, version int, changes []contentChange) (*lens.Document, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[uri]
	if !ok {
		return nil, false
	}

	text := doc.FullText()
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		current := lens.NewDocument(uri, doc.LanguageID, version, text)
		end := current.PositionAt(current.Len())
		text = current.Text(lens.Range{End: change.Range.Start}) +
			change.Text +
			current.Text(lens.Range{Start: change.Range.End, End: end})
	}

	doc = lens.NewDocument(uri, doc.LanguageID, version, text)
	d.docs[uri] = doc
	return doc, true
}

// Close forgets uri and returns its last snapshot.
func (d *Documents) Close(uri string) (*lens.Document, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[uri]
	delete(d.docs, uri)
	return doc, ok
}

// Len returns the number of open documents.
func (d *Documents) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}
