package users

import (
	"context"
	"errors"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/sirupsen/logrus"
)

// userFinder はGraphQLのリゾルバーがユーザーを引くためのインターフェース。
type userFinder interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}

// errLookupFailed はリポジトリの失敗をクライアントへ返すときのエラー。
// 内部のエラー内容は外に出さずログにのみ残す。
var errLookupFailed = errors.New("ユーザーの取得に失敗しました")

// newSchema は内部API用のGraphQLスキーマを構築する。
//
//	type Query { user(id: ID): User }
//	type User { id: Int! email: String! fullName: String! isStaff: Boolean! isActive: Boolean! }
func newSchema(finder userFinder, logger logrus.FieldLogger) (graphql.Schema, error) {
	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"email":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"fullName": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"isStaff":  &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"isActive": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"user": &graphql.Field{
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.ID},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					raw, ok := p.Args["id"].(string)
					if !ok {
						return nil, nil
					}
					// 数値でないIDに該当するユーザーはいない
					id, err := strconv.ParseInt(raw, 10, 64)
					if err != nil {
						return nil, nil
					}

					user, err := finder.GetByID(p.Context, id)
					if errors.Is(err, ErrUserNotFound) {
						return nil, nil
					}
					if err != nil {
						logger.WithError(err).WithField("user_id", id).Error("ユーザーの取得に失敗")
						return nil, errLookupFailed
					}
					return toGraphQL(user), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// toGraphQL はUserをGraphQLのデフォルトリゾルバーが読めるmapに変換する。
func toGraphQL(u *User) map[string]any {
	return map[string]any{
		"id":       int(u.ID),
		"email":    u.Email,
		"fullName": u.FullName,
		"isStaff":  u.IsStaff,
		"isActive": u.IsActive,
	}
}
