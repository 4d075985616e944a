// Package trackstore persists tracks and their fingerprint codes in a
// relational database and ranks stored tracks against a query fingerprint.
//
// Ranking is done by the database: one aggregate query scores every track
// sharing at least one code with the query, and a second query fetches the
// overlapping (code, time) pairs for the top candidates only.
//
//	store, err := trackstore.Open(
//	    trackstore.WithDriver(trackstore.DriverSQLite),
//	    trackstore.WithDSN("codematch.sqlite3"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Disconnect()
//
//	id, err := store.AddTrack(ctx, fp, "")
//	matches, err := store.MatchFingerprint(ctx, query, 10)
//
// Codes are written in the same transaction as their track, either as
// multi-row inserts (StrategyBatch) or by spooling them to a temporary
// tab-separated file first (StrategyFile). On MySQL the file is handed to
// LOAD DATA LOCAL INFILE, which requires local_infile on the server.
package trackstore
