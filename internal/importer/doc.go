// Package importer copies discovered acquisitions into the project under
// sequential names.
//
// Every acquisition becomes <prefix>_<NNNNNN>. The last number handed out
// lives in last_filenumber.txt and every rename is appended to the
// translation file, which is also how a second import of the same
// acquisition is recognised and skipped. Grid positions get small stable
// numbers kept in .spot_dict.
package importer
