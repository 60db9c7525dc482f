package meta

// inheritanceOrderedList holds metadata waiting to be resolved. A type is
// always kept ahead of every buffered subtype.
type inheritanceOrderedList struct {
	items []*ClassMetaData
}

// add inserts meta ahead of the first buffered subtype. It returns false when
// meta is nil or already buffered.
func (l *inheritanceOrderedList) add(meta *ClassMetaData) bool {
	if meta == nil || l.contains(meta) {
		return false
	}
	for i, other := range l.items {
		if meta.typ != other.typ && meta.typ.IsAssignableFrom(other.typ) {
			l.items = append(l.items, nil)
			copy(l.items[i+1:], l.items[i:])
			l.items[i] = meta
			return true
		}
	}
	l.items = append(l.items, meta)
	return true
}

func (l *inheritanceOrderedList) contains(meta *ClassMetaData) bool {
	for _, m := range l.items {
		if m == meta {
			return true
		}
	}
	return false
}

// peek returns the least derived buffered metadata.
func (l *inheritanceOrderedList) peek() *ClassMetaData {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

func (l *inheritanceOrderedList) remove(meta *ClassMetaData) bool {
	for i, m := range l.items {
		if m == meta {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *inheritanceOrderedList) isEmpty() bool { return len(l.items) == 0 }

func (l *inheritanceOrderedList) len() int { return len(l.items) }

// drain empties the list and returns what it held.
func (l *inheritanceOrderedList) drain() []*ClassMetaData {
	items := l.items
	l.items = nil
	return items
}
