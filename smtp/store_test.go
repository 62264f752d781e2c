package smtp

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMaildirStoreDelivery(t *testing.T) {
	Convey("A full BeginWrite/Write/EndWrite cycle commits one message under new/", t, func() {
		root := t.TempDir()
		store, err := NewMaildirStore(root)
		So(err, ShouldBeNil)

		So(store.BeginWrite(), ShouldResemble, ResponseOk)
		So(store.Write("Subject: hello"), ShouldBeNil)
		So(store.Write(""), ShouldBeNil)
		So(store.Write("body"), ShouldBeNil)
		So(store.EndWrite(), ShouldResemble, ResponseOk)
		So(store.Close(), ShouldBeNil)

		entries, err := os.ReadDir(filepath.Join(root, "new"))
		So(err, ShouldBeNil)
		So(len(entries), ShouldEqual, 1)
	})

	Convey("Nothing is committed until EndWrite is called", t, func() {
		root := t.TempDir()
		store, err := NewMaildirStore(root)
		So(err, ShouldBeNil)

		So(store.BeginWrite(), ShouldResemble, ResponseOk)
		So(store.Write("unfinished"), ShouldBeNil)

		entries, err := os.ReadDir(filepath.Join(root, "new"))
		So(err, ShouldBeNil)
		So(len(entries), ShouldEqual, 0)
	})
}

func TestMaildirStoreFactoryCreate(t *testing.T) {
	Convey("Create roots every delivery at the factory's configured path", t, func() {
		dir := t.TempDir()
		factory := MaildirStoreFactory{Root: dir}
		ctx := &SessionContext{Options: &ServerOptions{}}
		tx := &Transaction{}

		store, err := factory.Create(ctx, tx)
		So(err, ShouldBeNil)
		So(store, ShouldNotBeNil)
	})
}
