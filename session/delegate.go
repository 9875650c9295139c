package session

// ReaderSessionDelegate receives reader session callbacks. All methods are
// called on the session's dispatch queue.
type ReaderSessionDelegate interface {
	// ReaderSessionDidBecomeActive is called once after Begin.
	ReaderSessionDidBecomeActive(session *ReaderSession)

	// ReaderSessionDidDetect is called once with the tags found in the field.
	ReaderSessionDidDetect(session *ReaderSession, tags []*Tag)

	// ReaderSessionDidInvalidate is called exactly once when the session ends.
	ReaderSessionDidInvalidate(session *ReaderSession, err *InvalidationError)
}
