package datastore

import "sort"

// Dataset is the reference corpus: per-document reference terms and raw texts,
// both keyed by document id.
type Dataset struct {
	References map[string][]string
	Texts      map[string]string
}

// DocumentIDs returns the reference document ids in sorted order.
func (d *Dataset) DocumentIDs() []string {
	ids := make([]string, 0, len(d.References))
	for id := range d.References {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TextIDs returns the ids of documents that have a text body, sorted.
func (d *Dataset) TextIDs() []string {
	ids := make([]string, 0, len(d.Texts))
	for id := range d.Texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Coverage returns the sorted ids that have a text but no reference terms,
// and those that have reference terms but no text.
func (d *Dataset) Coverage() (textOnly, referenceOnly []string) {
	for _, id := range d.TextIDs() {
		if _, ok := d.References[id]; !ok {
			textOnly = append(textOnly, id)
		}
	}
	for _, id := range d.DocumentIDs() {
		if _, ok := d.Texts[id]; !ok {
			referenceOnly = append(referenceOnly, id)
		}
	}
	return textOnly, referenceOnly
}
