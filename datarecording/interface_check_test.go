package datarecording

var _ DataRecorder = (*sqliteWriter)(nil)
