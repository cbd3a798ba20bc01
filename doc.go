/*
Package recstore contains a single-file record store which maps small
records (32-bit words, word arrays, strings and string arrays) to numeric
indices and persists them in fixed-size blocks.

Data Structure Documentation

File

A file is a sequence of 4KiB blocks. Block 0 holds the header, data
records start in block 1 and are followed by the index table.

    File layout:
    +----------+---------+---------+---------+---------------+-------+---------------+
    |  header  | block 1 |   ...   | block k | index block 1 |  ...  | index block m |
    +----------+---------+---------+---------+---------------+-------+---------------+

    Header (zero-padded to the block size):
    +-------------------+-------------------+-------------------+-------------------+--------------------+-------------------+
    | index block (u32) | index blocks (u32)| index length (u32)| num indices (u32) | reserved (3 x u32) |  version (u32)    |
    +-------------------+-------------------+-------------------+-------------------+--------------------+-------------------+

Index

Each index block holds up to 128 entries of 32 bytes, the last one may be
partially filled. The position of an entry in the table is the index
returned to callers. Deleted entries have a block number of 0 and are
dropped when the file is reopened.

    Index entry:
    +-------------+--------------+--------------+-----------------+------------------------+--------------------+
    | block (u32) | offset (u32) | length (u32) | data type (u32) | virtual length (u32)   | reserved (3 x u32) |
    +-------------+--------------+--------------+-----------------+------------------------+--------------------+

Records

Records are packed sequentially, start at word-aligned offsets and span
block boundaries as needed. The virtual length of a record is its length
rounded up to a multiple of 4 bytes; an update which fits into it is
written in place.

    Word:
    +------------+
    | word (u32) |
    +------------+

    Word array:
    +-------------+------------+-------+------------+
    | count (u32) | word (u32) |  ...  | word (u32) |
    +-------------+------------+-------+------------+

    String:
    +--------------+-------------+
    | length (u32) |    bytes    |
    +--------------+-------------+

    String array:
    +-------------+----------------+-------+----------------+-----------+-------+-----------+
    | count (u32) | length 1 (u32) |  ...  | length n (u32) | string 1  |  ...  | string n  |
    +-------------+----------------+-------+----------------+-----------+-------+-----------+

All integers are stored little-endian, independent of the host.

Durability

Data and index are committed when the store is closed (or flushed). A
store which is not closed properly leaves the file in an undefined state.
*/
package recstore
