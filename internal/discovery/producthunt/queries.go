package producthunt

const postsQuery = `
query GetPosts($first: Int!, $after: String, $order: PostsOrder!, $topic: String, $postedAfter: DateTime) {
  posts(first: $first, after: $after, order: $order, topic: $topic, postedAfter: $postedAfter) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id name tagline description website url
        votesCount reviewsCount reviewsRating
        createdAt featuredAt slug
        topics { edges { node { name slug } } }
        makers { id name username headline }
        thumbnail { url }
      }
    }
  }
}`

const topicsQuery = `
query GetTopics($first: Int!, $after: String) {
  topics(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges { node { id name slug description postsCount } }
  }
}`
