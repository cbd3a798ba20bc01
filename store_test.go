package recstore_test

import (
	"os"
	"strings"

	"github.com/bsm/recstore"
	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var path string
	var subject *recstore.Store

	BeforeEach(func() {
		path = tempFile()
		subject = openStore(path, recstore.ModeUpdate)
	})

	AfterEach(func() {
		_ = subject.Close()
	})

	reopen := func(mode recstore.Mode) {
		Expect(subject.Close()).To(Succeed())
		subject = openStore(path, mode)
	}

	It("should validate open arguments", func() {
		_, err := recstore.Open("", recstore.ModeCreate, nil)
		Expect(err).To(MatchError(recstore.ErrEmpty))

		_, err = recstore.Open(tempFile(), recstore.Mode(9), nil)
		Expect(err).To(MatchError(recstore.ErrMode))

		_, err = recstore.Open(tempFile(), recstore.ModeRead, nil)
		Expect(err).To(MatchError(os.ErrNotExist))
	})

	It("should write and read each kind", func() {
		Expect(subject.WriteWord(42)).To(Equal(0))
		Expect(subject.WriteWords([]uint32{1, 2, 0xffffffff})).To(Equal(1))
		Expect(subject.WriteString("hello")).To(Equal(2))
		Expect(subject.WriteStrings([]string{"a", "", "ccc"})).To(Equal(3))
		Expect(subject.Len()).To(Equal(4))

		Expect(subject.ReadWord(0)).To(Equal(uint32(42)))
		Expect(subject.ReadWords(1)).To(Equal([]uint32{1, 2, 0xffffffff}))
		Expect(subject.ReadString(2)).To(Equal("hello"))
		Expect(subject.ReadStrings(3)).To(Equal([]string{"a", "", "ccc"}))
	})

	It("should write and read empty values", func() {
		Expect(subject.WriteWords(nil)).To(Equal(0))
		Expect(subject.WriteString("")).To(Equal(1))
		Expect(subject.WriteStrings(nil)).To(Equal(2))

		Expect(subject.ReadWords(0)).To(Equal([]uint32{}))
		Expect(subject.ReadString(1)).To(Equal(""))
		Expect(subject.ReadStrings(2)).To(Equal([]string{}))

		reopen(recstore.ModeRead)
		Expect(subject.ReadWords(0)).To(BeEmpty())
		Expect(subject.ReadString(1)).To(Equal(""))
		Expect(subject.ReadStrings(2)).To(BeEmpty())
	})

	It("should persist records across reopen", func() {
		Expect(subject.Close()).To(Succeed())
		subject = openStore(path, recstore.ModeCreate)

		Expect(subject.WriteWord(42)).To(Equal(0))
		Expect(subject.WriteStrings([]string{"a", "bb", "ccc"})).To(Equal(1))

		reopen(recstore.ModeRead)
		Expect(subject.Len()).To(Equal(2))
		Expect(subject.ReadWord(0)).To(Equal(uint32(42)))
		Expect(subject.ReadStrings(1)).To(Equal([]string{"a", "bb", "ccc"}))
	})

	It("should create a minimal file", func() {
		reopen(recstore.ModeRead)
		Expect(subject.Len()).To(Equal(0))
		Expect(subject.NumBlocks()).To(Equal(3))

		Expect(readWordAt(path, 0)).To(Equal(uint32(2)))  // index block
		Expect(readWordAt(path, 4)).To(Equal(uint32(1)))  // index block count
		Expect(readWordAt(path, 12)).To(Equal(uint32(0))) // num indices
		Expect(readWordAt(path, 28)).To(Equal(uint32(recstore.FormatVersion)))
	})

	It("should truncate in create mode", func() {
		Expect(subject.WriteString("old")).To(Equal(0))
		reopen(recstore.ModeCreate)
		Expect(subject.Len()).To(Equal(0))

		reopen(recstore.ModeRead)
		Expect(subject.Len()).To(Equal(0))
	})

	It("should append after reopen", func() {
		Expect(subject.WriteString("first")).To(Equal(0))
		Expect(subject.WriteWords([]uint32{7, 8})).To(Equal(1))

		reopen(recstore.ModeUpdate)
		Expect(subject.WriteString("third")).To(Equal(2))
		Expect(subject.ReadString(0)).To(Equal("first"))

		reopen(recstore.ModeRead)
		Expect(subject.ReadString(0)).To(Equal("first"))
		Expect(subject.ReadWords(1)).To(Equal([]uint32{7, 8}))
		Expect(subject.ReadString(2)).To(Equal("third"))
	})

	It("should enforce read mode", func() {
		Expect(subject.WriteWord(1)).To(Equal(0))
		reopen(recstore.ModeRead)

		_, err := subject.WriteWord(2)
		Expect(err).To(MatchError(recstore.ErrMode))
		_, err = subject.WriteWords([]uint32{2})
		Expect(err).To(MatchError(recstore.ErrMode))
		_, err = subject.WriteString("x")
		Expect(err).To(MatchError(recstore.ErrMode))
		_, err = subject.WriteStrings([]string{"x"})
		Expect(err).To(MatchError(recstore.ErrMode))
		_, err = subject.UpdateWord(2, 0)
		Expect(err).To(MatchError(recstore.ErrMode))
		_, err = subject.UpdateWords(nil, 0)
		Expect(err).To(MatchError(recstore.ErrMode))
		Expect(subject.Delete(0)).To(MatchError(recstore.ErrMode))
		Expect(subject.Flush()).To(MatchError(recstore.ErrMode))

		Expect(subject.ReadWord(0)).To(Equal(uint32(1)))
	})

	It("should enforce create mode", func() {
		Expect(subject.Close()).To(Succeed())
		subject = openStore(path, recstore.ModeCreate)

		Expect(subject.WriteWord(1)).To(Equal(0))
		_, err := subject.ReadWord(0)
		Expect(err).To(MatchError(recstore.ErrMode))
		_, err = subject.ReadStrings(0)
		Expect(err).To(MatchError(recstore.ErrMode))
	})

	It("should reject invalid indices", func() {
		Expect(subject.WriteWord(1)).To(Equal(0))

		_, err := subject.ReadWord(1)
		Expect(err).To(MatchError(recstore.ErrInvalidIndex))
		_, err = subject.ReadString(-1)
		Expect(err).To(MatchError(recstore.ErrInvalidIndex))
		_, err = subject.UpdateWord(5, 3)
		Expect(err).To(MatchError(recstore.ErrInvalidIndex))
		Expect(subject.Delete(1)).To(MatchError(recstore.ErrInvalidIndex))
		_, err = subject.Entry(2)
		Expect(err).To(MatchError(recstore.ErrInvalidIndex))
	})

	It("should reject type mismatches", func() {
		Expect(subject.WriteString("str")).To(Equal(0))

		_, err := subject.ReadWord(0)
		Expect(err).To(MatchError(recstore.ErrInvalidState))
		_, err = subject.ReadWords(0)
		Expect(err).To(MatchError(recstore.ErrInvalidState))
		_, err = subject.ReadStrings(0)
		Expect(err).To(MatchError(recstore.ErrInvalidState))
		_, err = subject.UpdateWord(1, 0)
		Expect(err).To(MatchError(recstore.ErrInvalidState))
		Expect(subject.ReadString(0)).To(Equal("str"))
	})

	It("should delete", func() {
		Expect(subject.WriteWord(1)).To(Equal(0))
		Expect(subject.WriteWords([]uint32{1, 2})).To(Equal(1))
		Expect(subject.WriteString("two")).To(Equal(2))
		Expect(subject.WriteStrings([]string{"three"})).To(Equal(3))

		for i := 0; i < 4; i++ {
			Expect(subject.Delete(i)).To(Succeed())
		}
		Expect(subject.Len()).To(Equal(4))

		_, err := subject.ReadWord(0)
		Expect(err).To(MatchError(recstore.ErrInvalidState))
		_, err = subject.ReadWords(1)
		Expect(err).To(MatchError(recstore.ErrInvalidState))
		_, err = subject.ReadString(2)
		Expect(err).To(MatchError(recstore.ErrInvalidState))
		_, err = subject.ReadStrings(3)
		Expect(err).To(MatchError(recstore.ErrInvalidState))

		ent, err := subject.Entry(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(ent.Deleted()).To(BeTrue())
	})

	It("should not affect other records on delete", func() {
		Expect(subject.WriteString("one")).To(Equal(0))
		Expect(subject.WriteString("two")).To(Equal(1))
		Expect(subject.WriteString("three")).To(Equal(2))
		Expect(subject.Delete(1)).To(Succeed())

		Expect(subject.ReadString(0)).To(Equal("one"))
		Expect(subject.ReadString(2)).To(Equal("three"))
		Expect(subject.WriteString("four")).To(Equal(3))
		Expect(subject.ReadString(3)).To(Equal("four"))
	})

	It("should drop deleted records on reopen", func() {
		Expect(subject.WriteString("one")).To(Equal(0))
		Expect(subject.WriteWord(2)).To(Equal(1))
		Expect(subject.WriteString("three")).To(Equal(2))
		Expect(subject.WriteWords([]uint32{4})).To(Equal(3))
		Expect(subject.Delete(1)).To(Succeed())
		Expect(subject.Delete(3)).To(Succeed())

		reopen(recstore.ModeUpdate)
		Expect(subject.Len()).To(Equal(2))
		Expect(subject.ReadString(0)).To(Equal("one"))
		Expect(subject.ReadString(1)).To(Equal("three"))

		Expect(subject.WriteString("five")).To(Equal(2))
		reopen(recstore.ModeRead)
		Expect(subject.ReadString(0)).To(Equal("one"))
		Expect(subject.ReadString(1)).To(Equal("three"))
		Expect(subject.ReadString(2)).To(Equal("five"))
	})

	It("should reopen a store with deleted tail records", func() {
		Expect(subject.WriteString("one")).To(Equal(0))
		Expect(subject.WriteString(strings.Repeat("x", 3*recstore.BlockSize))).To(Equal(1))
		Expect(subject.Delete(1)).To(Succeed())
		Expect(subject.WriteString("three")).To(Equal(2))
		Expect(subject.Delete(2)).To(Succeed())
		Expect(subject.WriteString("four")).To(Equal(3))

		reopen(recstore.ModeRead)
		Expect(subject.Len()).To(Equal(2))
		Expect(subject.ReadString(0)).To(Equal("one"))
		Expect(subject.ReadString(1)).To(Equal("four"))
	})

	Describe("update", func() {
		It("should update words in place", func() {
			Expect(subject.WriteWord(1)).To(Equal(0))
			Expect(subject.WriteWord(2)).To(Equal(1))

			Expect(subject.UpdateWord(11, 0)).To(Equal(0))
			Expect(subject.ReadWord(0)).To(Equal(uint32(11)))
			Expect(subject.ReadWord(1)).To(Equal(uint32(2)))
		})

		It("should update strings in place when they fit", func() {
			Expect(subject.WriteString("hello world")).To(Equal(0)) // 15 bytes, 16 reserved
			Expect(subject.WriteString("next")).To(Equal(1))

			Expect(subject.UpdateString("hi", 0)).To(Equal(0))
			Expect(subject.ReadString(0)).To(Equal("hi"))
			Expect(subject.ReadString(1)).To(Equal("next"))

			ent, err := subject.Entry(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ent.Length).To(Equal(uint32(6)))
			Expect(ent.VirtualLength).To(Equal(uint32(16)))

			Expect(subject.UpdateString("0123456789ab", 0)).To(Equal(0))
			Expect(subject.ReadString(0)).To(Equal("0123456789ab"))
			Expect(subject.ReadString(1)).To(Equal("next"))
		})

		It("should relocate strings when they grow", func() {
			Expect(subject.WriteString("hello world")).To(Equal(0))
			Expect(subject.WriteString("next")).To(Equal(1))

			Expect(subject.UpdateString("0123456789abc", 0)).To(Equal(2))
			Expect(subject.ReadString(2)).To(Equal("0123456789abc"))
			Expect(subject.ReadString(1)).To(Equal("next"))

			_, err := subject.ReadString(0)
			Expect(err).To(MatchError(recstore.ErrInvalidState))
			_, err = subject.UpdateString("x", 0)
			Expect(err).To(MatchError(recstore.ErrInvalidState))
		})

		It("should relocate the last record", func() {
			Expect(subject.WriteString("a")).To(Equal(0))
			Expect(subject.WriteString("b")).To(Equal(1))

			Expect(subject.UpdateString("bbbbbbbb", 1)).To(Equal(2))
			Expect(subject.UpdateString("bbbbbbbbbbbbbbbb", 2)).To(Equal(3))
			Expect(subject.ReadString(0)).To(Equal("a"))
			Expect(subject.ReadString(3)).To(Equal("bbbbbbbbbbbbbbbb"))

			reopen(recstore.ModeRead)
			Expect(subject.Len()).To(Equal(2))
			Expect(subject.ReadString(0)).To(Equal("a"))
			Expect(subject.ReadString(1)).To(Equal("bbbbbbbbbbbbbbbb"))
		})

		It("should update word arrays", func() {
			Expect(subject.WriteWords([]uint32{1, 2, 3})).To(Equal(0))

			Expect(subject.UpdateWords([]uint32{9}, 0)).To(Equal(0))
			Expect(subject.ReadWords(0)).To(Equal([]uint32{9}))
			Expect(subject.UpdateWords([]uint32{4, 5, 6}, 0)).To(Equal(0))
			Expect(subject.ReadWords(0)).To(Equal([]uint32{4, 5, 6}))

			Expect(subject.UpdateWords([]uint32{1, 2, 3, 4}, 0)).To(Equal(1))
			Expect(subject.ReadWords(1)).To(Equal([]uint32{1, 2, 3, 4}))

			_, err := subject.UpdateWords(nil, 1)
			Expect(err).To(MatchError(recstore.ErrEmpty))
		})

		It("should update string arrays", func() {
			Expect(subject.WriteStrings([]string{"abc", "def"})).To(Equal(0)) // 18 bytes, 20 reserved

			Expect(subject.UpdateStrings([]string{"x", "y", "z"}, 0)).To(Equal(0))
			Expect(subject.ReadStrings(0)).To(Equal([]string{"x", "y", "z"}))

			Expect(subject.UpdateStrings([]string{"abcdef", "ghijkl"}, 0)).To(Equal(1))
			Expect(subject.ReadStrings(1)).To(Equal([]string{"abcdef", "ghijkl"}))

			_, err := subject.UpdateStrings([]string{}, 1)
			Expect(err).To(MatchError(recstore.ErrEmpty))
		})

		It("should check the target before rejecting empty values", func() {
			Expect(subject.WriteWords([]uint32{1})).To(Equal(0))
			Expect(subject.WriteStrings([]string{"a"})).To(Equal(1))
			Expect(subject.WriteStrings([]string{"b"})).To(Equal(2))
			Expect(subject.Delete(2)).To(Succeed())

			_, err := subject.UpdateWords(nil, 5)
			Expect(err).To(MatchError(recstore.ErrInvalidIndex))
			_, err = subject.UpdateStrings(nil, -1)
			Expect(err).To(MatchError(recstore.ErrInvalidIndex))
			_, err = subject.UpdateStrings(nil, 2)
			Expect(err).To(MatchError(recstore.ErrInvalidState))
			_, err = subject.UpdateWords(nil, 1)
			Expect(err).To(MatchError(recstore.ErrInvalidState))
			_, err = subject.UpdateStrings(nil, 0)
			Expect(err).To(MatchError(recstore.ErrInvalidState))

			_, err = subject.UpdateWords(nil, 0)
			Expect(err).To(MatchError(recstore.ErrEmpty))
			Expect(subject.ReadWords(0)).To(Equal([]uint32{1}))
		})

		It("should persist in-place updates", func() {
			Expect(subject.WriteStrings([]string{"abc", "def"})).To(Equal(0))
			Expect(subject.WriteWord(7)).To(Equal(1))
			Expect(subject.UpdateStrings([]string{"g"}, 0)).To(Equal(0))

			reopen(recstore.ModeRead)
			Expect(subject.ReadStrings(0)).To(Equal([]string{"g"}))
			Expect(subject.ReadWord(1)).To(Equal(uint32(7)))
		})
	})

	It("should read back records within a session", func() {
		big := strings.Repeat("abcdefgh", recstore.BlockSize/4)
		for i := 0; i < 5; i++ {
			Expect(subject.WriteString(big)).To(Equal(2 * i))
			Expect(subject.WriteWord(uint32(i))).To(Equal(2*i + 1))
			Expect(subject.ReadString(0)).To(Equal(big))
		}
		for i := 0; i < 5; i++ {
			Expect(subject.ReadString(2 * i)).To(Equal(big))
			Expect(subject.ReadWord(2*i + 1)).To(Equal(uint32(i)))
		}
	})

	It("should flush", func() {
		Expect(subject.WriteString("one")).To(Equal(0))
		Expect(subject.WriteWords([]uint32{2})).To(Equal(1))
		Expect(subject.Flush()).To(Succeed())

		other := openStore(path, recstore.ModeRead)
		Expect(other.Len()).To(Equal(2))
		Expect(other.ReadString(0)).To(Equal("one"))
		Expect(other.Close()).To(Succeed())

		Expect(subject.WriteString("three")).To(Equal(2))
		Expect(subject.ReadWords(1)).To(Equal([]uint32{2}))

		reopen(recstore.ModeRead)
		Expect(subject.Len()).To(Equal(3))
		Expect(subject.ReadString(0)).To(Equal("one"))
		Expect(subject.ReadWords(1)).To(Equal([]uint32{2}))
		Expect(subject.ReadString(2)).To(Equal("three"))
	})

	It("should keep flushed data readable while appending", func() {
		Expect(subject.WriteString("one")).To(Equal(0))
		Expect(subject.Flush()).To(Succeed())

		big := strings.Repeat("z", 3*recstore.BlockSize)
		Expect(subject.WriteString(big)).To(Equal(1))
		Expect(subject.WriteWord(3)).To(Equal(2))

		other := openStore(path, recstore.ModeRead)
		Expect(other.Len()).To(Equal(1))
		Expect(other.ReadString(0)).To(Equal("one"))
		Expect(other.Close()).To(Succeed())

		Expect(subject.Flush()).To(Succeed())
		Expect(subject.WriteString(big)).To(Equal(3))

		other = openStore(path, recstore.ModeRead)
		Expect(other.Len()).To(Equal(3))
		Expect(other.ReadString(1)).To(Equal(big))
		Expect(other.ReadWord(2)).To(Equal(uint32(3)))
		Expect(other.Close()).To(Succeed())

		reopen(recstore.ModeRead)
		Expect(subject.Len()).To(Equal(4))
		Expect(subject.ReadString(0)).To(Equal("one"))
		Expect(subject.ReadString(3)).To(Equal(big))
	})

	It("should close", func() {
		Expect(subject.Close()).To(Succeed())
		Expect(subject.Close()).To(MatchError(recstore.ErrClosed))
		Expect(subject.NumBlocks()).To(Equal(0))

		_, err := subject.ReadWord(0)
		Expect(err).To(MatchError(recstore.ErrClosed))
		_, err = subject.WriteWord(0)
		Expect(err).To(MatchError(recstore.ErrClosed))
	})

	It("should log", func() {
		var lines []string
		logger := funcr.New(func(prefix, args string) {
			lines = append(lines, prefix+" "+args)
		}, funcr.Options{Verbosity: 1})

		Expect(subject.Close()).To(Succeed())
		s, err := recstore.Open(path, recstore.ModeUpdate, &recstore.Options{Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		subject = s

		Expect(subject.WriteWord(1)).To(Equal(0))
		Expect(lines).To(ContainElement(ContainSubstring(`"msg"="write word"`)))
		Expect(lines).To(ContainElement(ContainSubstring(`"msg"="opened"`)))
	})
})
