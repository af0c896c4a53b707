package disk

// PAGE_SIZE is the fixed byte size of every page the disk manager and
// buffer pool exchange.
const PAGE_SIZE = 4096

// INVALID_PAGE_ID marks the absence of a page.
const INVALID_PAGE_ID int64 = -1

// DEFAULT_PAGE_CAPACITY is the page count a new disk manager assumes the
// db file can hold before it first resizes the file. NewDiskManager does
// not grow the file to this size itself.
const DEFAULT_PAGE_CAPACITY = 16
