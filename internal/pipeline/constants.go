package pipeline

// Console messages printed while a run progresses.
const (
	msgSearching   = "Searching for PDFs in %s...\n"
	msgProcessing  = "Processing %s...\n"
	msgReadError   = "Error reading %s: %v\n"
	msgNoDocuments = "No PDF files found in the directory.\n"
	msgNoRecords   = "No matching expense data found in the PDFs.\n"
	msgSuccess     = "Success! Extracted %d entries.\n"
	msgSaved       = "Data saved to %s\n"
	msgWrote       = "Wrote records to %s\n"
)
