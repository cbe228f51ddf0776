/*
Package verysimple creates VSFS ("Very Simple File System") images.

An image is a sequence of fixed-size blocks split into five regions, always in
this order:

	block 0                      superblock
	1 .. 1+I                     inode bitmap     (I = InodeBitmapBlocks)
	1+I .. 1+I+D                 data bitmap      (D = DataBitmapBlocks)
	1+I+D .. 1+I+D+T             inode table      (T = InodeTableBlocks)
	1+I+D+T .. TotalBlocks       data blocks

The data bitmap has one bit per block of the whole image, including the
superblock and the bitmaps themselves. The inode bitmap has one bit per possible
inode. All integers on disk are little-endian.

Only the initial state of an image is produced here. Reading and writing files
on a formatted image is not implemented.

Two behaviors are kept for compatibility with existing images even though they
look odd:

  - The inode table size is rounded down, while both bitmaps are rounded up.
    See [ComputeLayout].
  - The root directory's inode claims two links but by default owns no data
    block and has no "." or ".." entries. Set [Options.PopulateRootDirectory]
    to get a root directory that actually contains them.
*/

package verysimple
